package decoder

import (
	"image"
	"image/draw"
	"testing"

	"qrprocess-pi/pkg/qrgen"
	"qrprocess-pi/pkg/types"
)

func TestDecodeQR(t *testing.T) {
	img, err := qrgen.Generate("hello scanner")
	if err != nil {
		t.Fatal(err)
	}

	objs, err := New().Decode(img, []types.CodeType{types.CodeQR, types.CodeEAN13})
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d objects", len(objs))
	}
	if objs[0].Type != types.CodeQR {
		t.Fatalf("type = %s", objs[0].Type)
	}
	if v, ok := objs[0].StringValue(); !ok || v != "hello scanner" {
		t.Fatalf("payload = %q", v)
	}
	if len(objs[0].Corners) < 3 || objs[0].Bounds.IsEmpty() {
		t.Fatalf("object not located: %+v", objs[0])
	}
}

func TestDecodeCroppedKeepsPosition(t *testing.T) {
	code, err := qrgen.Generate("offset")
	if err != nil {
		t.Fatal(err)
	}
	size := code.Bounds().Dx()
	canvas := image.NewGray(image.Rect(0, 0, size*2, size*2))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	at := image.Pt(size, size)
	draw.Draw(canvas, code.Bounds().Add(at), code, image.Point{}, draw.Src)

	crop := canvas.SubImage(image.Rect(size/2, size/2, size*2, size*2))
	objs, err := New().Decode(crop, []types.CodeType{types.CodeQR})
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d objects", len(objs))
	}
	c := objs[0].Bounds.Center()
	if c.X < float64(size) || c.Y < float64(size) {
		t.Fatalf("center %+v is not in the pasted code", c)
	}
}

func TestDecodeNothing(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 64, 64))
	objs, err := New(WithTryHarder(true)).Decode(blank, types.AllCodeTypes)
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 0 {
		t.Fatalf("got %+v", objs)
	}
}

func TestSupported(t *testing.T) {
	d := New()
	for _, ct := range types.AllCodeTypes {
		want := ct != types.CodePDF417
		if d.Supported(ct) != want {
			t.Errorf("Supported(%s) = %v", ct, !want)
		}
	}
}
