package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	mdframe "github.com/pion/mediadevices/pkg/frame"

	"qrprocess-pi/pkg/types"
)

type PixelFormat string

const (
	FormatMJPEG PixelFormat = "MJPG"
	FormatJPEG  PixelFormat = "JPEG"
	FormatYUYV  PixelFormat = "YUYV"
	FormatUYVY  PixelFormat = "UYVY"
	FormatNV12  PixelFormat = "NV12"
	FormatI420  PixelFormat = "YU12"
	FormatRGB24 PixelFormat = "RGB3"
	FormatGrey  PixelFormat = "GREY"
	// FormatImage marks frames whose backend already produced an image.Image.
	FormatImage PixelFormat = "IMG"
)

var (
	ErrEmptyFrame        = errors.New("empty frame")
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
)

// Frame is one captured video frame as delivered by a capture input.
type Frame struct {
	Data   []byte
	Format PixelFormat
	Width  int
	Height int
	Time   types.Time

	// Img is set by backends that deliver decoded images (Format == FormatImage).
	Img image.Image
}

func (f Frame) Size() types.Size {
	return types.Size{Width: float64(f.Width), Height: float64(f.Height)}
}

// IsJPEG reports whether Data can be written out as-is as a JPEG image.
func (f Frame) IsJPEG() bool {
	return f.Format == FormatMJPEG || f.Format == FormatJPEG
}

// Image decodes the frame. release must be called once the image is no longer used.
func (f Frame) Image() (img image.Image, release func(), err error) {
	noop := func() {}
	if f.Format == FormatImage {
		if f.Img == nil {
			return nil, noop, ErrEmptyFrame
		}
		return f.Img, noop, nil
	}
	if len(f.Data) == 0 {
		return nil, noop, ErrEmptyFrame
	}

	switch f.Format {
	case FormatJPEG, FormatMJPEG:
		img, err = jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, noop, fmt.Errorf("decode jpeg frame: %w", err)
		}
		return img, noop, nil
	case FormatRGB24:
		if f.Width <= 0 || f.Height <= 0 {
			return nil, noop, fmt.Errorf("rgb frame without dimensions")
		}
		if len(f.Data) < f.Width*f.Height*3 {
			return nil, noop, fmt.Errorf("rgb frame of %d bytes does not fit %dx%d", len(f.Data), f.Width, f.Height)
		}
		return NewRGB(f.Data, f.Width, f.Height), noop, nil
	case FormatGrey:
		return decodeGrey(f.Data, f.Width, f.Height)
	}

	mf, ok := mediaFormats[f.Format]
	if !ok {
		return nil, noop, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
	}
	dec, err := mdframe.NewDecoder(mf)
	if err != nil {
		return nil, noop, fmt.Errorf("%w: %s: %s", ErrUnsupportedFormat, f.Format, err)
	}
	img, release, err = dec.Decode(f.Data, f.Width, f.Height)
	if err != nil {
		return nil, noop, err
	}
	if release == nil {
		release = noop
	}

	return img, release, nil
}

var mediaFormats = map[PixelFormat]mdframe.Format{
	FormatYUYV: mdframe.FormatYUYV,
	FormatUYVY: mdframe.FormatUYVY,
	FormatNV12: mdframe.FormatNV12,
	FormatI420: mdframe.FormatI420,
}

func decodeGrey(data []byte, width, height int) (image.Image, func(), error) {
	noop := func() {}
	if width <= 0 || height <= 0 || len(data) < width*height {
		return nil, noop, fmt.Errorf("grey frame of %d bytes does not fit %dx%d", len(data), width, height)
	}
	img := &image.Gray{
		Pix:    data,
		Stride: len(data) / height,
		Rect:   image.Rect(0, 0, width, height),
	}

	return img, noop, nil
}

// EncodeJPEG returns the frame as JPEG bytes, re-encoding when the frame is not JPEG already.
func (f Frame) EncodeJPEG(quality int) ([]byte, error) {
	if f.IsJPEG() {
		return f.Data, nil
	}
	img, release, err := f.Image()
	if err != nil {
		return nil, err
	}
	defer release()

	var buf bytes.Buffer
	if err = EncodeJPEG(img, &buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
