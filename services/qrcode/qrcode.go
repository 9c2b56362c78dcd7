package qrsvc

import (
	"image"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

// PNG encodes `content` as a size x size PNG QR code.
func PNG(content string, size int) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	return png, errors.Wrap(err, "encoding qr code")
}

// Image returns `content` as a borderless size x size QR code image, to be drawn onto another canvas.
func Image(content string, size int) (image.Image, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, errors.Wrap(err, "encoding qr code")
	}
	q.DisableBorder = true
	return q.Image(size), nil
}
