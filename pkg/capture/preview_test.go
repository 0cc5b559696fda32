package capture

import (
	"math"
	"testing"

	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLayerGeometryAspectFill(t *testing.T) {
	g := LayerGeometry{
		Frame:     types.R(0, 0, 100, 200),
		VideoSize: types.Size{Width: 200, Height: 100},
		Gravity:   GravityResizeAspectFill,
	}

	v, ok := g.VideoRect()
	if !ok || v != types.R(-150, 0, 400, 200) {
		t.Fatalf("video rect = %+v %v", v, ok)
	}

	p, _ := g.DevicePoint(types.Point{X: 50, Y: 100})
	if !near(p.X, 0.5) || !near(p.Y, 0.5) {
		t.Fatalf("center maps to %+v", p)
	}

	r := g.MetadataRect(types.R(25, 50, 50, 100))
	if !near(r.X, 0.4375) || !near(r.Width, 0.125) || !near(r.Y, 0.25) || !near(r.Height, 0.5) {
		t.Fatalf("metadata rect = %+v", r)
	}
}

func TestLayerGeometryAspectFit(t *testing.T) {
	g := LayerGeometry{
		Frame:     types.R(0, 0, 100, 200),
		VideoSize: types.Size{Width: 200, Height: 100},
		Gravity:   GravityResizeAspect,
	}
	v, _ := g.VideoRect()
	if v != types.R(0, 75, 100, 50) {
		t.Fatalf("video rect = %+v", v)
	}
	// the whole layer covers more than the video, clipped to the unit rect
	if r := g.MetadataRect(types.R(0, 0, 100, 200)); r != types.UnitRect {
		t.Fatalf("metadata rect = %+v", r)
	}
}

func TestLayerGeometryIdentity(t *testing.T) {
	g := LayerGeometry{Frame: types.R(0, 0, 400, 300)}
	r := g.MetadataRect(types.R(100, 75, 200, 150))
	if !near(r.X, 0.25) || !near(r.Y, 0.25) || !near(r.Width, 0.5) || !near(r.Height, 0.5) {
		t.Fatalf("metadata rect = %+v", r)
	}
}

func TestLayerGeometryMirrored(t *testing.T) {
	g := LayerGeometry{Frame: types.R(0, 0, 100, 100), Mirrored: true}
	p, _ := g.DevicePoint(types.Point{X: 10, Y: 20})
	if !near(p.X, 0.9) || !near(p.Y, 0.2) {
		t.Fatalf("device point = %+v", p)
	}
	back, _ := g.LayerPoint(p)
	if !near(back.X, 10) || !near(back.Y, 20) {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestTransformedMetadataObject(t *testing.T) {
	l := NewPreviewLayer(nil)
	if _, ok := l.TransformedMetadataObject(Object{Bounds: types.R(0, 0, 1, 1)}); ok {
		t.Fatal("transform succeeded without a frame")
	}

	l.SetFrame(types.R(0, 0, 200, 100))
	o, ok := l.TransformedMetadataObject(Object{
		Bounds:  types.R(0.25, 0.5, 0.5, 0.25),
		Corners: []types.Point{{X: 0.25, Y: 0.5}},
	})
	if !ok {
		t.Fatal("transform failed")
	}
	if !near(o.Bounds.X, 50) || !near(o.Bounds.Y, 50) || !near(o.Bounds.Width, 100) || !near(o.Bounds.Height, 25) {
		t.Fatalf("bounds = %+v", o.Bounds)
	}
	if !near(o.Corners[0].X, 50) || !near(o.Corners[0].Y, 50) {
		t.Fatalf("corner = %+v", o.Corners[0])
	}
}

func TestMetadataRectEmpty(t *testing.T) {
	l := NewPreviewLayer(nil)
	if r := l.MetadataOutputRectConverted(types.R(0, 0, 10, 10)); !r.IsEmpty() {
		t.Fatalf("got %+v for a layer without frame", r)
	}
	l.SetFrame(types.R(0, 0, 10, 10))
	if r := l.MetadataOutputRectConverted(types.ZeroRect); !r.IsEmpty() {
		t.Fatalf("got %+v for an empty rect", r)
	}
}

type fakeSurface struct {
	bounds   types.Rect
	layers   []*PreviewLayer
	frames   []frame.Frame
	removed  int
	layoutCt int
}

func (s *fakeSurface) Bounds() types.Rect                          { return s.bounds }
func (s *fakeSurface) ConvertRect(r types.Rect, _ View) types.Rect { return r }
func (s *fakeSurface) InsertSublayer(l *PreviewLayer, _ int)       { s.layers = append(s.layers, l) }
func (s *fakeSurface) RemoveSublayer(*PreviewLayer)                { s.removed++; s.layers = nil }
func (s *fakeSurface) SetNeedsLayout()                             { s.layoutCt++ }
func (s *fakeSurface) DisplayFrame(f frame.Frame)                  { s.frames = append(s.frames, f) }

func TestPreviewLayerHosting(t *testing.T) {
	a, b := &fakeSurface{}, &fakeSurface{}
	l := NewPreviewLayer(nil)

	l.InsertInto(a, 0)
	l.InsertInto(a, 0)
	if len(a.layers) != 1 {
		t.Fatalf("inserted %d times", len(a.layers))
	}
	l.InsertInto(b, 0)
	if a.removed != 1 || len(b.layers) != 1 || l.Superlayer() != b {
		t.Fatal("layer not moved to the new surface")
	}

	l.consume(frame.Frame{Width: 640, Height: 480}, nil)
	if len(b.frames) != 1 {
		t.Fatal("frame not forwarded to the surface")
	}
	if l.VideoSize() != (types.Size{Width: 640, Height: 480}) {
		t.Fatalf("video size = %+v", l.VideoSize())
	}

	l.RemoveFromSuperlayer()
	if b.removed != 1 || l.Superlayer() != nil {
		t.Fatal("layer still hosted")
	}
	l.RemoveFromSuperlayer()
	if b.removed != 1 {
		t.Fatal("removed twice")
	}
}
