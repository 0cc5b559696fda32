package capture

import (
	"image"
	"math"
	"slices"
	"sync"

	"go.uber.org/zap"

	"qrprocess-pi/pkg/dispatch"
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
	"qrprocess-pi/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Output is a session stage fed with every captured frame.
type Output interface {
	frameConsumer
}

type frameConsumer interface {
	consume(f frame.Frame, conn *Connection)
}

// Connection links the input a frame came from to the stage processing it.
type Connection struct {
	Input  Input
	Output Output
}

// ObjectsHandler receives one call per processed frame, with zero or more objects.
type ObjectsHandler interface {
	OnDetections(objects []Object, conn *Connection)
}

type ObjectsHandlerFunc func(objects []Object, conn *Connection)

func (f ObjectsHandlerFunc) OnDetections(objects []Object, conn *Connection) {
	f(objects, conn)
}

// MetadataOutput turns frames into detected-object batches. Decoding is restricted to the
// rect of interest and the configured symbologies; batches are handed to the handler on
// the handler queue in frame order.
type MetadataOutput struct {
	decoder Decoder

	mu      sync.RWMutex
	types   []types.CodeType
	rect    types.Rect
	handler ObjectsHandler
	queue   *dispatch.Queue
}

func NewMetadataOutput(decoder Decoder) *MetadataOutput {
	return &MetadataOutput{
		decoder: decoder,
		rect:    types.UnitRect,
	}
}

func (o *MetadataOutput) SetObjectsHandler(h ObjectsHandler, q *dispatch.Queue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = h
	o.queue = q
}

func (o *MetadataOutput) SetObjectTypes(ts []types.CodeType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.types = slices.Clone(ts)
}

func (o *MetadataOutput) ObjectTypes() []types.CodeType {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.types)
}

// SetRectOfInterest restricts reported objects to r, in normalized output coordinates.
func (o *MetadataOutput) SetRectOfInterest(r types.Rect) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rect = r.Intersect(types.UnitRect)
}

func (o *MetadataOutput) RectOfInterest() types.Rect {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rect
}

func (o *MetadataOutput) consume(f frame.Frame, conn *Connection) {
	o.mu.RLock()
	handler, queue, symbols, roi := o.handler, o.queue, o.types, o.rect
	o.mu.RUnlock()
	if handler == nil || queue == nil || len(symbols) == 0 {
		return
	}

	objects := o.detect(f, symbols, roi)
	queue.Async(func() {
		handler.OnDetections(objects, conn)
	})
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func (o *MetadataOutput) detect(f frame.Frame, symbols []types.CodeType, roi types.Rect) []Object {
	if roi.IsEmpty() || o.decoder == nil {
		return nil
	}
	img, release, err := f.Image()
	if err != nil {
		logger.Debugf("metadata output: skip frame: %s", err)
		return nil
	}
	defer release()

	full := img.Bounds()
	if full.Empty() {
		return nil
	}
	fw, fh := float64(full.Dx()), float64(full.Dy())

	src := img
	if roi != types.UnitRect {
		crop := image.Rect(
			full.Min.X+int(math.Floor(roi.MinX()*fw)),
			full.Min.Y+int(math.Floor(roi.MinY()*fh)),
			full.Min.X+int(math.Ceil(roi.MaxX()*fw)),
			full.Min.Y+int(math.Ceil(roi.MaxY()*fh)),
		).Intersect(full)
		if s, ok := img.(subImager); ok && !crop.Empty() {
			src = s.SubImage(crop)
		}
	}

	found, err := o.decoder.Decode(src, symbols)
	if err != nil {
		logger.Debugf("metadata output: decode: %s", err)
		return nil
	}

	normalize := func(p types.Point) types.Point {
		return types.Point{
			X: (p.X - float64(full.Min.X)) / fw,
			Y: (p.Y - float64(full.Min.Y)) / fh,
		}
	}
	res := make([]Object, 0, len(found))
	for _, obj := range found {
		if !slices.Contains(symbols, obj.Type) {
			continue
		}
		min := normalize(obj.Bounds.Origin())
		max := normalize(types.Point{X: obj.Bounds.MaxX(), Y: obj.Bounds.MaxY()})
		obj.Bounds = types.RectFromPoints(min, max)
		corners := make([]types.Point, len(obj.Corners))
		for i, c := range obj.Corners {
			corners[i] = normalize(c)
		}
		obj.Corners = corners
		if !roi.Contains(obj.Bounds.Center()) {
			continue
		}
		if !obj.Time.IsValid() {
			obj.Time = f.Time
		}
		res = append(res, obj)
	}

	return res
}
