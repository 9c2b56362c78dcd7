package rendersvc

import (
	"bytes"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/trezcool/congress/core/diploma"
	qrsvc "github.com/trezcool/congress/services/qrcode"
)

const (
	qrPixels = 300
	qrImage  = "qr"
	fontName = "go"
)

// PDF renders A4 landscape diplomas. The Go fonts are embedded (subset) so any name prints,
// whatever its script.
type PDF struct{}

var _ diploma.Renderer = PDF{}

func NewPDF() PDF { return PDF{} }

func (PDF) ContentType() string { return "application/pdf" }
func (PDF) Ext() string         { return ".pdf" }

func (r PDF) Render(c diploma.Content) ([]byte, error) {
	pdf, err := r.document(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "writing pdf")
	}
	return buf.Bytes(), nil
}

func (PDF) document(c diploma.Content) (*gofpdf.Fpdf, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(fontName, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(fontName, "B", gobold.TTF)
	pdf.AddUTF8FontFromBytes(fontName, "I", goitalic.TTF)
	if err := pdf.Error(); err != nil {
		return nil, errors.Wrap(err, "loading fonts")
	}

	pdf.SetTitle(c.Title+" - "+c.Name, true)
	pdf.SetCreator(c.EventName, true)
	pdf.SetCreationDate(c.IssuedAt)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	w, h := pdf.GetPageSize()

	// frame
	pdf.SetDrawColor(31, 58, 96)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(14, 14, w-28, h-28, "D")

	centered := func(y, size float64, style, txt string) {
		pdf.SetFont(fontName, style, size)
		pdf.SetXY(20, y)
		pdf.CellFormat(w-40, size*0.5, txt, "", 0, "C", false, 0, "")
	}

	pdf.SetTextColor(31, 58, 96)
	centered(30, 18, "", c.EventName)
	centered(50, 40, "B", c.Title)

	pdf.SetTextColor(60, 60, 60)
	centered(80, 14, "I", "This is to certify that")
	pdf.SetTextColor(0, 0, 0)
	centered(95, 32, "B", c.Name)

	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont(fontName, "", 16)
	pdf.SetXY(40, 118)
	pdf.MultiCell(w-80, 8, c.Subtitle, "", "C", false)

	// footer: date & code on the left, qr code on the right
	pdf.SetFont(fontName, "", 11)
	pdf.SetXY(25, h-40)
	pdf.CellFormat(120, 6, "Issued on "+c.IssuedAt.Format("January 2, 2006"), "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Verification code: "+c.Code, "", 2, "L", false, 0, "")
	pdf.SetFont(fontName, "", 8)
	pdf.CellFormat(120, 5, c.VerifyURL, "", 0, "L", false, 0, c.VerifyURL)

	if c.VerifyURL != "" {
		png, err := qrsvc.PNG(c.VerifyURL, qrPixels)
		if err != nil {
			return nil, err
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(qrImage, opts, bytes.NewReader(png))
		pdf.ImageOptions(qrImage, w-55, h-55, 35, 35, false, opts, 0, c.VerifyURL)
	}
	return pdf, nil
}
