// Package decoder reads barcodes out of images with gozxing.
package decoder

import (
	"image"
	"slices"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"go.uber.org/zap"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/types"
	"qrprocess-pi/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Decoder implements capture.Decoder. Each symbology is tried once per image, so at most
// one symbol per symbology is reported per frame.
type Decoder struct {
	tryHarder bool

	mu      sync.Mutex
	readers map[types.CodeType]gozxing.Reader
	warned  map[types.CodeType]bool
}

type Option func(*Decoder)

// WithTryHarder trades speed for accuracy.
func WithTryHarder(enabled bool) Option {
	return func(d *Decoder) {
		d.tryHarder = enabled
	}
}

func New(opts ...Option) *Decoder {
	d := &Decoder{
		readers: map[types.CodeType]gozxing.Reader{
			types.CodeQR:              qrcode.NewQRCodeReader(),
			types.CodeDataMatrix:      datamatrix.NewDataMatrixReader(),
			types.CodeAztec:           aztec.NewAztecReader(),
			types.CodeCode128:         oned.NewCode128Reader(),
			types.CodeCode39:          oned.NewCode39Reader(),
			types.CodeCode39Mod43:     oned.NewCode39ReaderWithCheckDigitFlag(true),
			types.CodeCode93:          oned.NewCode93Reader(),
			types.CodeEAN13:           oned.NewEAN13Reader(),
			types.CodeEAN8:            oned.NewEAN8Reader(),
			types.CodeUPCE:            oned.NewUPCEReader(),
			types.CodeInterleaved2of5: oned.NewITFReader(),
		},
		warned: make(map[types.CodeType]bool),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Supported reports whether t can be decoded.
func (d *Decoder) Supported(t types.CodeType) bool {
	if t == types.CodeITF14 {
		return true
	}
	_, ok := d.readers[t]
	return ok
}

// order in which symbologies are tried; checksummed variants go before their plain forms
var order = []types.CodeType{
	types.CodeQR,
	types.CodeDataMatrix,
	types.CodeAztec,
	types.CodeEAN13,
	types.CodeEAN8,
	types.CodeUPCE,
	types.CodeCode128,
	types.CodeCode39Mod43,
	types.CodeCode39,
	types.CodeCode93,
	types.CodeITF14,
	types.CodeInterleaved2of5,
	types.CodePDF417,
}

func (d *Decoder) Decode(img image.Image, symbologies []types.CodeType) ([]capture.Object, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}
	origin := img.Bounds().Min

	d.mu.Lock()
	defer d.mu.Unlock()

	var res []capture.Object
	found := make(map[types.CodeType]bool)
	for _, t := range order {
		if !slices.Contains(symbologies, t) {
			continue
		}
		switch t {
		case types.CodeCode39:
			if found[types.CodeCode39Mod43] {
				continue
			}
		case types.CodeInterleaved2of5:
			if found[types.CodeITF14] {
				continue
			}
		}

		obj, ok := d.decodeOne(bmp, t, symbologies)
		if !ok {
			continue
		}
		obj.Bounds = obj.Bounds.Offset(float64(origin.X), float64(origin.Y))
		for i := range obj.Corners {
			obj.Corners[i].X += float64(origin.X)
			obj.Corners[i].Y += float64(origin.Y)
		}
		found[obj.Type] = true
		res = append(res, obj)
	}

	return res, nil
}

func (d *Decoder) decodeOne(bmp *gozxing.BinaryBitmap, t types.CodeType, symbologies []types.CodeType) (capture.Object, bool) {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if d.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	readerType := t
	if t == types.CodeITF14 {
		readerType = types.CodeInterleaved2of5
		hints[gozxing.DecodeHintType_ALLOWED_LENGTHS] = []int{14}
	}
	r, ok := d.readers[readerType]
	if !ok {
		if !d.warned[t] {
			d.warned[t] = true
			logger.Warnf("decoder: %s is not supported, ignoring", t)
		}
		return capture.Object{}, false
	}

	result, err := r.Decode(bmp, hints)
	r.Reset()
	if err != nil {
		return capture.Object{}, false
	}

	obj := capture.Object{Type: t}
	if text := result.GetText(); text != "" {
		obj.Payload = &text
	}
	if t == types.CodeInterleaved2of5 && len(result.GetText()) == 14 && slices.Contains(symbologies, types.CodeITF14) {
		obj.Type = types.CodeITF14
	}
	for _, p := range result.GetResultPoints() {
		obj.Corners = append(obj.Corners, types.Point{X: p.GetX(), Y: p.GetY()})
	}
	obj.Bounds = types.BoundingRect(obj.Corners)

	return obj, true
}
