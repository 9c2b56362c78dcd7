package rendersvc

import (
	"bytes"
	"image/png"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/core/diploma"
)

var content = diploma.Content{
	EventName: "Test Congress",
	Name:      "Zoë Ångström",
	Title:     "Diploma",
	Subtitle:  `for winning the 1st place in the competition "Robotics: line follower"`,
	Code:      "7K2M-Q9XD-4TBA",
	VerifyURL: "http://localhost:3000/diplomas/verify/7K2M-Q9XD-4TBA",
	IssuedAt:  time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
}

func TestPDF_Render(t *testing.T) {
	r := NewPDF()
	assert.Equal(t, "application/pdf", r.ContentType())
	assert.Equal(t, ".pdf", r.Ext())

	data, err := r.Render(content)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	noQR := content
	noQR.VerifyURL = ""
	data, err = r.Render(noQR)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

// utf16BE is how text shown with an embedded UTF-8 font lands in an uncompressed content stream.
func utf16BE(s string) []byte {
	var b []byte
	for _, u := range utf16.Encode([]rune(s)) {
		b = append(b, byte(u>>8), byte(u))
	}
	return b
}

func TestPDF_Render_NonLatin1(t *testing.T) {
	for _, name := range []string{"Łukasz Dvořák", "Νίκος Παπαδόπουλος", "Ольга Петрова"} {
		t.Run(name, func(t *testing.T) {
			c := content
			c.Name = name

			doc, err := NewPDF().document(c)
			require.NoError(t, err)
			doc.SetCompression(false)
			var buf bytes.Buffer
			require.NoError(t, doc.Output(&buf))

			assert.True(t, bytes.Contains(buf.Bytes(), utf16BE(name)), "name missing from the page")
			assert.Contains(t, buf.String(), "/FontFile2", "font not embedded")
		})
	}
}

func TestPNG_Render(t *testing.T) {
	r := NewPNG()
	assert.Equal(t, "image/png", r.ContentType())
	assert.Equal(t, ".png", r.Ext())

	data, err := r.Render(content)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, pngWidth, img.Bounds().Dx())
	assert.Equal(t, pngHeight, img.Bounds().Dy())
}
