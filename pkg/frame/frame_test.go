package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestRGBFrame(t *testing.T) {
	const w, h = 4, 2
	data := make([]byte, w*h*3)
	// pixel (1,1) is pure red
	i := (1*w + 1) * 3
	data[i] = 0xff

	img, release, err := Frame{Data: data, Format: FormatRGB24, Width: w, Height: h}.Image()
	checkErr(t, err)
	defer release()

	if img.Bounds() != image.Rect(0, 0, w, h) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	r, g, b, _ := img.At(1, 1).RGBA()
	if r>>8 != 0xff || g != 0 || b != 0 {
		t.Fatalf("pixel (1,1) = %v, want red", img.At(1, 1))
	}

	sub := img.(*RGB).SubImage(image.Rect(1, 1, 3, 2))
	if got := sub.At(1, 1); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("sub image pixel = %v", got)
	}
}

func TestRGBFrameTooShort(t *testing.T) {
	_, _, err := Frame{Data: make([]byte, 5), Format: FormatRGB24, Width: 4, Height: 2}.Image()
	if err == nil {
		t.Fatal("expected error for short rgb frame")
	}
}

func TestJPEGRoundTrip(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 8))
	var buf bytes.Buffer
	checkErr(t, EncodeJPEG(src, &buf, 90))

	f := Frame{Data: buf.Bytes(), Format: FormatMJPEG}
	img, release, err := f.Image()
	checkErr(t, err)
	defer release()
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Fatalf("decoded bounds = %v", img.Bounds())
	}

	out, err := f.EncodeJPEG(90)
	checkErr(t, err)
	if !bytes.Equal(out, f.Data) {
		t.Fatal("jpeg frame was re-encoded")
	}
}

func TestGreyFrameEncode(t *testing.T) {
	f := Frame{Data: make([]byte, 8*8), Format: FormatGrey, Width: 8, Height: 8}
	out, err := f.EncodeJPEG(80)
	checkErr(t, err)
	if len(out) < 2 || out[0] != 0xff || out[1] != 0xd8 {
		t.Fatal("output is not a jpeg stream")
	}
}

func TestEmptyAndUnknownFrames(t *testing.T) {
	if _, _, err := (Frame{Format: FormatMJPEG}).Image(); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("err = %v, want ErrEmptyFrame", err)
	}
	if _, _, err := (Frame{Format: FormatImage}).Image(); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("err = %v, want ErrEmptyFrame", err)
	}
	if _, _, err := (Frame{Data: []byte{1}, Format: "ABCD"}).Image(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func checkErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
