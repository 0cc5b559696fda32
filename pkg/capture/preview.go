package capture

import (
	"math"
	"sync"

	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

// Gravity controls how video is fitted into the preview layer frame.
type Gravity int

const (
	// GravityResizeAspectFill fills the layer, cropping the video edges.
	GravityResizeAspectFill Gravity = iota
	// GravityResizeAspect letterboxes the video inside the layer.
	GravityResizeAspect
	// GravityResize stretches the video to the layer.
	GravityResize
)

func (g Gravity) String() string {
	switch g {
	case GravityResizeAspect:
		return "resizeAspect"
	case GravityResize:
		return "resize"
	default:
		return "resizeAspectFill"
	}
}

// PreviewLayer shows the frames of a session on a host surface and converts between
// layer coordinates and normalized capture coordinates.
type PreviewLayer struct {
	session *Session

	mu         sync.RWMutex
	frame      types.Rect
	gravity    Gravity
	videoSize  types.Size
	mirrored   bool
	superlayer Surface
}

// NewPreviewLayer creates a layer bound to session. A nil session yields a layer that
// never receives frames.
func NewPreviewLayer(session *Session) *PreviewLayer {
	l := &PreviewLayer{session: session}
	if session != nil {
		session.attachPreview(l)
	}

	return l
}

func (l *PreviewLayer) Session() *Session {
	return l.session
}

// Detach stops frame delivery from the session.
func (l *PreviewLayer) Detach() {
	if l.session != nil {
		l.session.detachPreview(l)
	}
}

func (l *PreviewLayer) SetVideoGravity(g Gravity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gravity = g
}

func (l *PreviewLayer) VideoGravity() Gravity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gravity
}

func (l *PreviewLayer) SetFrame(r types.Rect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = r
}

func (l *PreviewLayer) Frame() types.Rect {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame
}

func (l *PreviewLayer) SetMirrored(m bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirrored = m
}

func (l *PreviewLayer) IsMirrored() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mirrored
}

// SetVideoSize overrides the video size, which is otherwise taken from incoming frames.
func (l *PreviewLayer) SetVideoSize(s types.Size) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.videoSize = s
}

func (l *PreviewLayer) VideoSize() types.Size {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.videoSize
}

func (l *PreviewLayer) Superlayer() Surface {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.superlayer
}

// InsertInto makes s the layer's host, removing it from any previous one.
func (l *PreviewLayer) InsertInto(s Surface, index int) {
	l.mu.Lock()
	prev := l.superlayer
	l.superlayer = s
	l.mu.Unlock()

	if prev == s {
		return
	}
	if prev != nil {
		prev.RemoveSublayer(l)
	}
	if s != nil {
		s.InsertSublayer(l, index)
	}
}

func (l *PreviewLayer) RemoveFromSuperlayer() {
	l.mu.Lock()
	prev := l.superlayer
	l.superlayer = nil
	l.mu.Unlock()

	if prev != nil {
		prev.RemoveSublayer(l)
	}
}

// Geometry returns a snapshot of the values used by coordinate conversions.
func (l *PreviewLayer) Geometry() LayerGeometry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LayerGeometry{
		Frame:     l.frame,
		VideoSize: l.videoSize,
		Gravity:   l.gravity,
		Mirrored:  l.mirrored,
	}
}

// CaptureDevicePointConverted maps a layer point to normalized device coordinates.
func (l *PreviewLayer) CaptureDevicePointConverted(p types.Point) types.Point {
	d, _ := l.Geometry().DevicePoint(p)
	return d
}

// MetadataOutputRectConverted maps a layer rect to a normalized rect of interest.
func (l *PreviewLayer) MetadataOutputRectConverted(r types.Rect) types.Rect {
	return l.Geometry().MetadataRect(r)
}

// TransformedMetadataObject maps an object from normalized output coordinates to layer
// coordinates. It fails while the layer has no frame.
func (l *PreviewLayer) TransformedMetadataObject(o Object) (Object, bool) {
	return l.Geometry().TransformObject(o)
}

func (l *PreviewLayer) consume(f frame.Frame, _ *Connection) {
	size := types.Size{Width: float64(f.Width), Height: float64(f.Height)}

	l.mu.Lock()
	if !size.IsEmpty() {
		l.videoSize = size
	}
	s := l.superlayer
	l.mu.Unlock()

	if r, ok := s.(FrameReceiver); ok {
		r.DisplayFrame(f)
	}
}

// LayerGeometry is an immutable view of a preview layer used for coordinate math.
// An empty VideoSize maps the frame straight onto the unit square.
type LayerGeometry struct {
	Frame     types.Rect
	VideoSize types.Size
	Gravity   Gravity
	Mirrored  bool
}

// VideoRect returns the area covered by video, in layer coordinates.
func (g LayerGeometry) VideoRect() (types.Rect, bool) {
	if g.Frame.IsEmpty() {
		return types.ZeroRect, false
	}
	vs := g.VideoSize
	if vs.IsEmpty() {
		return g.Frame, true
	}

	sx := g.Frame.Width / vs.Width
	sy := g.Frame.Height / vs.Height
	switch g.Gravity {
	case GravityResizeAspectFill:
		s := math.Max(sx, sy)
		sx, sy = s, s
	case GravityResizeAspect:
		s := math.Min(sx, sy)
		sx, sy = s, s
	}
	w, h := vs.Width*sx, vs.Height*sy

	return types.Rect{
		X:      g.Frame.MidX() - w/2,
		Y:      g.Frame.MidY() - h/2,
		Width:  w,
		Height: h,
	}, true
}

func (g LayerGeometry) DevicePoint(p types.Point) (types.Point, bool) {
	v, ok := g.VideoRect()
	if !ok {
		return types.Point{}, false
	}
	x := (p.X - v.X) / v.Width
	y := (p.Y - v.Y) / v.Height
	if g.Mirrored {
		x = 1 - x
	}

	return types.Point{X: x, Y: y}, true
}

func (g LayerGeometry) LayerPoint(d types.Point) (types.Point, bool) {
	v, ok := g.VideoRect()
	if !ok {
		return types.Point{}, false
	}
	x := d.X
	if g.Mirrored {
		x = 1 - x
	}

	return types.Point{X: v.X + x*v.Width, Y: v.Y + d.Y*v.Height}, true
}

// MetadataRect converts a layer rect to normalized output coordinates, clipped to the
// unit rect. The zero rect is returned when nothing of r overlaps the video.
func (g LayerGeometry) MetadataRect(r types.Rect) types.Rect {
	if r.IsEmpty() {
		return types.ZeroRect
	}
	a, ok := g.DevicePoint(r.Origin())
	if !ok {
		return types.ZeroRect
	}
	b, _ := g.DevicePoint(types.Point{X: r.MaxX(), Y: r.MaxY()})

	return types.RectFromPoints(a, b).Intersect(types.UnitRect)
}

func (g LayerGeometry) LayerRect(m types.Rect) (types.Rect, bool) {
	a, ok := g.LayerPoint(m.Origin())
	if !ok {
		return types.ZeroRect, false
	}
	b, _ := g.LayerPoint(types.Point{X: m.MaxX(), Y: m.MaxY()})

	return types.RectFromPoints(a, b), true
}

func (g LayerGeometry) TransformObject(o Object) (Object, bool) {
	b, ok := g.LayerRect(o.Bounds)
	if !ok {
		return Object{}, false
	}
	corners := make([]types.Point, len(o.Corners))
	for i, c := range o.Corners {
		corners[i], _ = g.LayerPoint(c)
	}
	o.Bounds = b
	o.Corners = corners

	return o, true
}
