// Package capturetest provides in-memory capture devices, inputs and decoders for tests.
package capturetest

import (
	"context"
	"errors"
	"image"
	"slices"
	"sync"
	"time"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

// Device is a scriptable capture.Device. Frames pushed with Send are delivered to the
// input currently streaming from it.
type Device struct {
	capture.ConfigLock

	id       string
	name     string
	position types.CameraPosition

	// Presets lists the supported presets; nil means all of them.
	Presets []capture.Preset
	// LowLight and Torch advertise optional features.
	LowLight bool
	Torch    bool
	// InputErr fails NewInput, StartErr fails Input.Start.
	InputErr error
	StartErr error
	// BoostErr fails SetAutomaticallyEnablesLowLightBoost on a LowLight device.
	BoostErr error

	frames chan frame.Frame

	mu            sync.Mutex
	calls         []string
	focusRange    capture.FocusRange
	focusMode     capture.FocusMode
	exposureMode  capture.ExposureMode
	focusPoint    *types.Point
	exposurePoint *types.Point
	lowLight      bool
	torch         capture.TorchMode
	inputs        int
}

func NewDevice(id string, position types.CameraPosition) *Device {
	return &Device{
		id:       id,
		name:     "fake " + id,
		position: position,
		frames:   make(chan frame.Frame),
	}
}

func (d *Device) ID() string                     { return d.id }
func (d *Device) Name() string                   { return d.name }
func (d *Device) Position() types.CameraPosition { return d.position }

func (d *Device) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

// Calls lists the successful setter calls in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

func (d *Device) SetAutoFocusRangeRestriction(r capture.FocusRange) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	d.mu.Lock()
	d.focusRange = r
	d.mu.Unlock()
	d.record("focusRange")
	return nil
}

func (d *Device) SetFocusMode(m capture.FocusMode) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	d.mu.Lock()
	d.focusMode = m
	d.mu.Unlock()
	d.record("focusMode")
	return nil
}

func (d *Device) SetExposureMode(m capture.ExposureMode) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	d.mu.Lock()
	d.exposureMode = m
	d.mu.Unlock()
	d.record("exposureMode")
	return nil
}

func (d *Device) SetFocusPointOfInterest(p types.Point) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	d.mu.Lock()
	d.focusPoint = &p
	d.mu.Unlock()
	d.record("focusPoint")
	return nil
}

func (d *Device) SetExposurePointOfInterest(p types.Point) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	d.mu.Lock()
	d.exposurePoint = &p
	d.mu.Unlock()
	d.record("exposurePoint")
	return nil
}

func (d *Device) SupportsPreset(p capture.Preset) bool {
	return d.Presets == nil || slices.Contains(d.Presets, p)
}

func (d *Device) IsLowLightBoostSupported() bool {
	return d.LowLight
}

func (d *Device) SetAutomaticallyEnablesLowLightBoost(enabled bool) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	if !d.LowLight {
		return capture.ErrUnsupported
	}
	if d.BoostErr != nil {
		return d.BoostErr
	}
	d.mu.Lock()
	d.lowLight = enabled
	d.mu.Unlock()
	d.record("lowLight")
	return nil
}

func (d *Device) HasTorch() bool {
	return d.Torch
}

func (d *Device) TorchMode() capture.TorchMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.torch
}

func (d *Device) SetTorchMode(m capture.TorchMode) error {
	if err := d.CheckLocked(); err != nil {
		return err
	}
	if !d.Torch {
		return capture.ErrUnsupported
	}
	d.mu.Lock()
	d.torch = m
	d.mu.Unlock()
	d.record("torch")
	return nil
}

func (d *Device) FocusRange() capture.FocusRange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focusRange
}

func (d *Device) FocusMode() capture.FocusMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focusMode
}

func (d *Device) ExposureMode() capture.ExposureMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposureMode
}

// FocusPoint returns the last focus point of interest, if one was set.
func (d *Device) FocusPoint() (types.Point, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focusPoint == nil {
		return types.Point{}, false
	}
	return *d.focusPoint, true
}

func (d *Device) ExposurePoint() (types.Point, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exposurePoint == nil {
		return types.Point{}, false
	}
	return *d.exposurePoint, true
}

func (d *Device) LowLightBoost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lowLight
}

// InputsCreated counts successful NewInput calls.
func (d *Device) InputsCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs
}

func (d *Device) NewInput() (capture.Input, error) {
	if d.InputErr != nil {
		return nil, d.InputErr
	}
	d.mu.Lock()
	d.inputs++
	d.mu.Unlock()
	return &Input{dev: d}, nil
}

// Send hands f to the streaming input. It reports false if nothing picked the frame up
// within timeout.
func (d *Device) Send(f frame.Frame, timeout time.Duration) bool {
	select {
	case d.frames <- f:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Input streams the frames sent to its device.
type Input struct {
	dev *Device

	mu     sync.Mutex
	cancel context.CancelFunc
	preset capture.Preset
	starts int
}

func (in *Input) Device() capture.Device {
	return in.dev
}

func (in *Input) Start(ctx context.Context, preset capture.Preset) (<-chan frame.Frame, error) {
	if in.dev.StartErr != nil {
		return nil, in.dev.StartErr
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cancel != nil {
		return nil, errors.New("input already started")
	}
	ctx, in.cancel = context.WithCancel(ctx)
	in.preset = preset
	in.starts++

	out := make(chan frame.Frame)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-in.dev.frames:
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cancel != nil {
		in.cancel()
		in.cancel = nil
	}
	return nil
}

// Preset is the preset of the last Start.
func (in *Input) Preset() capture.Preset {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.preset
}

func (in *Input) Starts() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.starts
}

// Decoder reports the same objects for every image, translated by the image origin so
// that cropped images keep their positions. Bounds are pixel coordinates.
type Decoder struct {
	Objects []capture.Object
	Err     error

	mu   sync.Mutex
	seen []image.Rectangle
}

func (d *Decoder) Decode(img image.Image, symbologies []types.CodeType) ([]capture.Object, error) {
	d.mu.Lock()
	d.seen = append(d.seen, img.Bounds())
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}

	min := img.Bounds().Min
	res := make([]capture.Object, 0, len(d.Objects))
	for _, o := range d.Objects {
		o.Bounds = o.Bounds.Offset(float64(min.X), float64(min.Y))
		corners := make([]types.Point, len(o.Corners))
		for i, c := range o.Corners {
			corners[i] = types.Point{X: c.X + float64(min.X), Y: c.Y + float64(min.Y)}
		}
		o.Corners = corners
		res = append(res, o)
	}

	return res, nil
}

// Seen returns the bounds of every decoded image.
func (d *Decoder) Seen() []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.seen)
}

// GreyFrame is a blank frame of the given size stamped with t.
func GreyFrame(width, height int, t time.Duration) frame.Frame {
	return frame.Frame{
		Data:   make([]byte, width*height),
		Format: frame.FormatGrey,
		Width:  width,
		Height: height,
		Time:   types.NewTime(t),
	}
}

// Str returns a pointer to s, for Object payloads.
func Str(s string) *string {
	return &s
}
