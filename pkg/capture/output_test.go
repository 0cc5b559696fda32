package capture_test

import (
	"image"
	"math"
	"testing"
	"time"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/capture/capturetest"
	"qrprocess-pi/pkg/dispatch"
	"qrprocess-pi/pkg/types"
)

type blockingDecoder struct {
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDecoder) Decode(image.Image, []types.CodeType) ([]capture.Object, error) {
	select {
	case d.entered <- struct{}{}:
	default:
	}
	<-d.release
	return nil, nil
}

func rectNear(a, b types.Rect) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps
}

// runOutput pushes one frame through a running session and returns the delivered batch.
func runOutput(t *testing.T, out *capture.MetadataOutput, f func(*capturetest.Device)) []capture.Object {
	t.Helper()

	dev := capturetest.NewDevice("a", types.PositionBack)
	in, _ := dev.NewInput()
	q := dispatch.New("decode")
	defer q.Close()
	got := make(chan []capture.Object, 1)
	out.SetObjectsHandler(capture.ObjectsHandlerFunc(func(objs []capture.Object, _ *capture.Connection) {
		got <- objs
	}), q)

	s := capture.NewSession()
	_ = s.AddInput(in)
	_ = s.AddOutput(out)
	if err := s.StartRunning(); err != nil {
		t.Fatal(err)
	}
	defer s.StopRunning()

	f(dev)
	select {
	case objs := <-got:
		return objs
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
	return nil
}

func TestMetadataOutputRectOfInterest(t *testing.T) {
	dec := &capturetest.Decoder{Objects: []capture.Object{
		{Type: types.CodeQR, Bounds: types.R(0, 0, 10, 10), Payload: capturetest.Str("in")},
		{Type: types.CodeQR, Bounds: types.R(-40, -40, 10, 10), Payload: capturetest.Str("out")},
	}}
	out := capture.NewMetadataOutput(dec)
	out.SetObjectTypes([]types.CodeType{types.CodeQR})
	out.SetRectOfInterest(types.R(0.5, 0.5, 0.5, 0.5))

	objs := runOutput(t, out, func(d *capturetest.Device) {
		d.Send(capturetest.GreyFrame(100, 100, 0), time.Second)
	})

	seen := dec.Seen()
	if len(seen) != 1 || seen[0] != image.Rect(50, 50, 100, 100) {
		t.Fatalf("decoded %v, want the rect of interest only", seen)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d objects, want 1", len(objs))
	}
	if v, _ := objs[0].StringValue(); v != "in" {
		t.Fatalf("got %q", v)
	}
	if want := types.R(0.5, 0.5, 0.1, 0.1); !rectNear(objs[0].Bounds, want) {
		t.Errorf("bounds = %+v, want %+v", objs[0].Bounds, want)
	}
}

func TestMetadataOutputFiltersTypes(t *testing.T) {
	dec := &capturetest.Decoder{Objects: []capture.Object{
		{Type: types.CodeEAN13, Bounds: types.R(0, 0, 10, 10), Payload: capturetest.Str("4006381333931")},
		{Type: types.CodeQR, Bounds: types.R(0, 0, 10, 10), Payload: capturetest.Str("qr")},
	}}
	out := capture.NewMetadataOutput(dec)
	out.SetObjectTypes([]types.CodeType{types.CodeQR})

	objs := runOutput(t, out, func(d *capturetest.Device) {
		d.Send(capturetest.GreyFrame(20, 20, 0), time.Second)
	})
	if len(objs) != 1 || objs[0].Type != types.CodeQR {
		t.Fatalf("got %+v", objs)
	}
}

func TestMetadataOutputEmptyBatch(t *testing.T) {
	out := capture.NewMetadataOutput(&capturetest.Decoder{})
	out.SetObjectTypes([]types.CodeType{types.CodeQR})

	objs := runOutput(t, out, func(d *capturetest.Device) {
		d.Send(capturetest.GreyFrame(20, 20, 0), time.Second)
	})
	if len(objs) != 0 {
		t.Fatalf("got %d objects", len(objs))
	}
}

func TestMetadataOutputKeepsDecoderTime(t *testing.T) {
	stamp := types.Time{Value: 90000, Timescale: 30000}
	dec := &capturetest.Decoder{Objects: []capture.Object{
		{Type: types.CodeQR, Bounds: types.R(0, 0, 10, 10), Time: stamp},
	}}
	out := capture.NewMetadataOutput(dec)
	out.SetObjectTypes([]types.CodeType{types.CodeQR})

	objs := runOutput(t, out, func(d *capturetest.Device) {
		d.Send(capturetest.GreyFrame(20, 20, time.Hour), time.Second)
	})
	if len(objs) != 1 || objs[0].Time != stamp {
		t.Fatalf("got %+v", objs)
	}
}

func TestSetRectOfInterestClips(t *testing.T) {
	out := capture.NewMetadataOutput(nil)
	if out.RectOfInterest() != types.UnitRect {
		t.Fatalf("default rect = %+v", out.RectOfInterest())
	}
	out.SetRectOfInterest(types.R(0.5, -0.5, 1, 1))
	if want := types.R(0.5, 0, 0.5, 0.5); out.RectOfInterest() != want {
		t.Fatalf("rect = %+v, want %+v", out.RectOfInterest(), want)
	}
}
