package capture

import (
	"image"

	"qrprocess-pi/pkg/types"
)

// Object is a machine-readable code located in a frame.
type Object struct {
	Type types.CodeType
	// Bounds and Corners are normalized output coordinates once the object leaves the
	// metadata output; decoders report them in pixel coordinates of the decoded image.
	Bounds  types.Rect
	Corners []types.Point
	Time    types.Time
	// Payload is nil when the symbol was located but its content could not be read.
	Payload *string
}

// StringValue returns the decoded payload, if any.
func (o Object) StringValue() (string, bool) {
	if o.Payload == nil {
		return "", false
	}
	return *o.Payload, true
}

// Decoder locates and reads codes of the requested symbologies in an image.
// Positions are reported in pixel coordinates of img.Bounds().
// Finding nothing is not an error.
type Decoder interface {
	Decode(img image.Image, symbologies []types.CodeType) ([]Object, error)
}

type DecoderFunc func(img image.Image, symbologies []types.CodeType) ([]Object, error)

func (f DecoderFunc) Decode(img image.Image, symbologies []types.CodeType) ([]Object, error) {
	return f(img, symbologies)
}
