package qrgen

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
)

func TestGenerate(t *testing.T) {
	img, err := Generate("https://example.com/item/42")
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dx()%Scale != 0 || b.Dx() != b.Dy() {
		t.Fatalf("bounds = %v", b)
	}
	// every module is a solid Scale x Scale block
	for y := 0; y < b.Dy(); y += Scale {
		for x := 0; x < b.Dx(); x += Scale {
			v := img.GrayAt(x, y).Y
			if img.GrayAt(x+Scale-1, y+Scale-1).Y != v {
				t.Fatalf("module at %d,%d is not uniform", x, y)
			}
		}
	}
}

func TestGenerateRejectsNonASCII(t *testing.T) {
	if _, err := Generate("héllo"); !errors.Is(err, ErrNotASCII) {
		t.Fatalf("got %v", err)
	}
}

func TestPNG(t *testing.T) {
	data, err := PNG("hello")
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx()%Scale != 0 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
}
