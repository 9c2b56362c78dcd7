package rendersvc

import (
	"bytes"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/trezcool/congress/core/diploma"
	qrsvc "github.com/trezcool/congress/services/qrcode"
)

// canvas size: A4 landscape at ~150 dpi
const (
	pngWidth  = 1754
	pngHeight = 1240
)

var (
	fontsOnce sync.Once
	fontsErr  error
	regular   *truetype.Font
	bold      *truetype.Font
	italic    *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if regular, fontsErr = truetype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		if bold, fontsErr = truetype.Parse(gobold.TTF); fontsErr != nil {
			return
		}
		italic, fontsErr = truetype.Parse(goitalic.TTF)
	})
	return errors.Wrap(fontsErr, "parsing fonts")
}

// PNG renders diplomas on a raster canvas with the Go fonts.
type PNG struct{}

var _ diploma.Renderer = PNG{}

func NewPNG() PNG { return PNG{} }

func (PNG) ContentType() string { return "image/png" }
func (PNG) Ext() string         { return ".png" }

func (PNG) Render(c diploma.Content) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(pngWidth, pngHeight)
	w, h := float64(pngWidth), float64(pngHeight)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// frame
	dc.SetRGB255(31, 58, 96)
	dc.SetLineWidth(12)
	dc.DrawRectangle(60, 60, w-120, h-120)
	dc.Stroke()
	dc.SetLineWidth(3)
	dc.DrawRectangle(84, 84, w-168, h-168)
	dc.Stroke()

	face := func(f *truetype.Font, size float64) font.Face {
		return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	}

	dc.SetFontFace(face(regular, 44))
	dc.DrawStringAnchored(c.EventName, w/2, 200, 0.5, 0.5)

	dc.SetFontFace(face(bold, 96))
	dc.DrawStringAnchored(c.Title, w/2, 330, 0.5, 0.5)

	dc.SetRGB255(60, 60, 60)
	dc.SetFontFace(face(italic, 36))
	dc.DrawStringAnchored("This is to certify that", w/2, 470, 0.5, 0.5)

	dc.SetRGB(0, 0, 0)
	dc.SetFontFace(face(bold, 80))
	dc.DrawStringAnchored(c.Name, w/2, 580, 0.5, 0.5)

	dc.SetRGB255(60, 60, 60)
	dc.SetFontFace(face(regular, 40))
	dc.DrawStringWrapped(c.Subtitle, w/2, 700, 0.5, 0, w-400, 1.4, gg.AlignCenter)

	dc.SetFontFace(face(regular, 28))
	dc.DrawString("Issued on "+c.IssuedAt.Format("January 2, 2006"), 150, h-230)
	dc.DrawString("Verification code: "+c.Code, 150, h-185)
	dc.SetFontFace(face(regular, 20))
	dc.DrawString(c.VerifyURL, 150, h-150)

	if c.VerifyURL != "" {
		qr, err := qrsvc.Image(c.VerifyURL, 200)
		if err != nil {
			return nil, err
		}
		dc.DrawImageAnchored(qr, int(w)-150, int(h)-150, 1, 1)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(err, "encoding png")
	}
	return buf.Bytes(), nil
}
