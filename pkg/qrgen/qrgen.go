// Package qrgen renders QR codes for ASCII text.
package qrgen

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Scale is the edge length in pixels of one QR module.
const Scale = 10

var ErrNotASCII = errors.New("text is not ASCII")

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

// Generate encodes text at error correction level M and scales every module to
// Scale x Scale pixels.
func Generate(text string) (*image.Gray, error) {
	if !isASCII(text) {
		return nil, ErrNotASCII
	}

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: "M",
		gozxing.EncodeHintType_CHARACTER_SET:    "ISO-8859-1",
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 0, 0, hints)
	if err != nil {
		return nil, err
	}

	w, h := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w*Scale, h*Scale))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray{Y: 0xff}
			if matrix.Get(x, y) {
				c = color.Gray{Y: 0}
			}
			for dy := 0; dy < Scale; dy++ {
				row := (y*Scale + dy) * img.Stride
				for dx := 0; dx < Scale; dx++ {
					img.Pix[row+x*Scale+dx] = c.Y
				}
			}
		}
	}

	return img, nil
}

func WritePNG(w io.Writer, text string) error {
	img, err := Generate(text)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func PNG(text string) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, text); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
