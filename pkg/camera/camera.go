package camera

import (
	"fmt"
	"sort"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/frame"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultFPS    = 15
)

// pixel formats in order of preference for scanning
var preferredFormats = []v4l2.FourCCType{
	v4l2.PixelFmtMJPEG,
	v4l2.PixelFmtJPEG,
	v4l2.PixelFmtYUYV,
	v4l2.PixelFmtRGB24,
}

var frameFormats = map[v4l2.FourCCType]frame.PixelFormat{
	v4l2.PixelFmtMJPEG: frame.FormatMJPEG,
	v4l2.PixelFmtJPEG:  frame.FormatJPEG,
	v4l2.PixelFmtYUYV:  frame.FormatYUYV,
	v4l2.PixelFmtRGB24: frame.FormatRGB24,
}

type frameSize struct {
	format v4l2.FourCCType
	minW   int
	minH   int
	maxW   int
	maxH   int
}

func (s frameSize) fits(w, h int) bool {
	return w >= s.minW && w <= s.maxW && h >= s.minH && h <= s.maxH
}

// capabilities is what a device reports about itself, read once per camera.
type capabilities struct {
	card    string
	driver  string
	capture bool
	sizes   []frameSize
	ctrls   map[v4l2.CtrlID]v4l2.Control
}

func (c *capabilities) hasCtrl(id v4l2.CtrlID) bool {
	if c == nil {
		return false
	}
	_, ok := c.ctrls[id]
	return ok
}

func probeDevice(dev *device.Device) (*capabilities, error) {
	capability := dev.Capability()
	caps := &capabilities{
		card:    capability.Card,
		driver:  capability.Driver,
		capture: capability.IsVideoCaptureSupported(),
		ctrls:   make(map[v4l2.CtrlID]v4l2.Control),
	}

	sizes, err := v4l2.GetAllFormatFrameSizes(dev.Fd())
	if err != nil {
		return nil, fmt.Errorf("frame sizes: %w", err)
	}
	for _, size := range sizes {
		if _, ok := frameFormats[size.PixelFormat]; !ok {
			continue
		}
		caps.sizes = append(caps.sizes, frameSize{
			format: size.PixelFormat,
			minW:   int(size.Size.MinWidth),
			minH:   int(size.Size.MinHeight),
			maxW:   int(size.Size.MaxWidth),
			maxH:   int(size.Size.MaxHeight),
		})
	}

	ctrls, err := v4l2.QueryAllExtControls(dev.Fd())
	if err != nil {
		logger.Warnf("query controls of %s: %s", capability.Card, err)
	}
	for _, ctrl := range ctrls {
		caps.ctrls[ctrl.ID] = ctrl
	}

	return caps, nil
}

// streamFormat picks the pixel format and size used to stream preset.
// ok is false when the device offers nothing suitable.
func (c *capabilities) streamFormat(preset capture.Preset) (format v4l2.FourCCType, width, height int, ok bool) {
	if c == nil {
		return 0, 0, 0, false
	}
	w, h := preset.Dimensions()
	for _, f := range preferredFormats {
		var candidates []frameSize
		for _, s := range c.sizes {
			if s.format == f {
				candidates = append(candidates, s)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if w == 0 {
			sort.Slice(candidates, func(i, j int) bool {
				return candidates[i].maxW*candidates[i].maxH > candidates[j].maxW*candidates[j].maxH
			})
			return f, candidates[0].maxW, candidates[0].maxH, true
		}
		for _, s := range candidates {
			if s.fits(w, h) {
				return f, w, h, true
			}
		}
	}

	return 0, 0, 0, false
}

func (c *capabilities) supports(preset capture.Preset) bool {
	_, _, _, ok := c.streamFormat(preset)
	return ok
}
