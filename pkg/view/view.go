// Package view is a small retained view tree for hosts without a GUI toolkit. Views
// have frames in their parent's coordinates, can host preview layers and pass the frames
// rendered into them on to receivers.
package view

import (
	"slices"
	"sync"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

type ReceiverFunc func(f frame.Frame)

func (fn ReceiverFunc) DisplayFrame(f frame.Frame) {
	fn(f)
}

// receiver boxes a FrameReceiver so that func receivers can be removed again.
type receiver struct {
	capture.FrameReceiver
}

type View struct {
	name string

	mu        sync.RWMutex
	frame     types.Rect
	parent    *View
	children  []*View
	layers    []*capture.PreviewLayer
	receivers []*receiver
	layout    func(v *View)
	layouts   int
}

func New(name string, frame types.Rect) *View {
	return &View{name: name, frame: frame}
}

func (v *View) Name() string {
	return v.name
}

// Frame is the view's rect in its parent's coordinates.
func (v *View) Frame() types.Rect {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frame
}

func (v *View) SetFrame(r types.Rect) {
	v.mu.Lock()
	v.frame = r
	v.mu.Unlock()
	v.SetNeedsLayout()
}

func (v *View) Bounds() types.Rect {
	f := v.Frame()
	return types.Rect{Width: f.Width, Height: f.Height}
}

func (v *View) AddSubview(c *View) {
	c.RemoveFromSuperview()

	v.mu.Lock()
	v.children = append(v.children, c)
	v.mu.Unlock()

	c.mu.Lock()
	c.parent = v
	c.mu.Unlock()
}

func (v *View) RemoveFromSuperview() {
	v.mu.Lock()
	p := v.parent
	v.parent = nil
	v.mu.Unlock()
	if p == nil {
		return
	}

	p.mu.Lock()
	p.children = slices.DeleteFunc(p.children, func(c *View) bool { return c == v })
	p.mu.Unlock()
}

func (v *View) Superview() *View {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.parent
}

func (v *View) Subviews() []*View {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.children)
}

// origin returns the position of the view's bounds in root coordinates.
func (v *View) origin() types.Point {
	var p types.Point
	for cur := v; cur != nil; cur = cur.Superview() {
		f := cur.Frame()
		p.X += f.X
		p.Y += f.Y
	}
	return p
}

// ConvertRect maps r from v's coordinates into to's. A target outside this package is
// treated as the root of the tree.
func (v *View) ConvertRect(r types.Rect, to capture.View) types.Rect {
	from := v.origin()
	r = r.Offset(from.X, from.Y)
	if t, ok := to.(*View); ok && t != nil {
		o := t.origin()
		r = r.Offset(-o.X, -o.Y)
	}
	return r
}

func (v *View) ConvertPoint(p types.Point, to capture.View) types.Point {
	r := v.ConvertRect(types.Rect{X: p.X, Y: p.Y}, to)
	return r.Origin()
}

func (v *View) InsertSublayer(l *capture.PreviewLayer, index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.layers = slices.DeleteFunc(v.layers, func(x *capture.PreviewLayer) bool { return x == l })
	index = max(0, min(index, len(v.layers)))
	v.layers = slices.Insert(v.layers, index, l)
}

func (v *View) RemoveSublayer(l *capture.PreviewLayer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.layers = slices.DeleteFunc(v.layers, func(x *capture.PreviewLayer) bool { return x == l })
}

func (v *View) Sublayers() []*capture.PreviewLayer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.layers)
}

// SetLayoutFunc installs fn to run on every SetNeedsLayout.
func (v *View) SetLayoutFunc(fn func(v *View)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.layout = fn
}

// SetNeedsLayout lays the view out right away; there is no render loop to defer to.
func (v *View) SetNeedsLayout() {
	v.mu.Lock()
	v.layouts++
	fn := v.layout
	v.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

func (v *View) Layouts() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.layouts
}

// AddReceiver registers r for rendered frames and returns the function removing it.
func (v *View) AddReceiver(r capture.FrameReceiver) (remove func()) {
	e := &receiver{r}
	v.mu.Lock()
	v.receivers = append(v.receivers, e)
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.receivers = slices.DeleteFunc(v.receivers, func(x *receiver) bool { return x == e })
	}
}

// DisplayFrame hands f to every receiver. It runs on the session's preview worker, so
// receivers must not block.
func (v *View) DisplayFrame(f frame.Frame) {
	v.mu.RLock()
	rs := slices.Clone(v.receivers)
	v.mu.RUnlock()

	for _, r := range rs {
		r.DisplayFrame(f)
	}
}
