package capture

import (
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

// View is a rectangular region of the host UI.
type View interface {
	// Bounds is the view's rect in its own coordinate space.
	Bounds() types.Rect
	// ConvertRect maps r from this view's coordinates into to's coordinates.
	ConvertRect(r types.Rect, to View) types.Rect
}

// Surface is a view able to host a preview layer.
type Surface interface {
	View
	InsertSublayer(layer *PreviewLayer, index int)
	RemoveSublayer(layer *PreviewLayer)
	SetNeedsLayout()
}

// FrameReceiver is implemented by surfaces that render the frames of their preview layer.
type FrameReceiver interface {
	DisplayFrame(f frame.Frame)
}
