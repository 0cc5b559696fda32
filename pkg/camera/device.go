package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/types"
)

var (
	ErrStarted    = errors.New("already started")
	ErrNotStarted = errors.New("camera not started")
)

// Camera is a V4L2 capture device. Controls set through the capture.Device setters are
// remembered and re-applied whenever streaming starts.
type Camera struct {
	capture.ConfigLock

	devName  string
	position types.CameraPosition
	fps      int

	lock   sync.Mutex
	cancel context.CancelFunc
	camera *device.Device
	caps   *capabilities

	settings      map[v4l2.CtrlID]v4l2.CtrlValue
	focusPoint    types.Point
	exposurePoint types.Point
	torch         capture.TorchMode
}

func New(devName string, position types.CameraPosition) *Camera {
	return &Camera{
		devName:  devName,
		position: position,
		fps:      DefaultFPS,
		settings: make(map[v4l2.CtrlID]v4l2.CtrlValue),
	}
}

func (c *Camera) ID() string {
	return c.devName
}

func (c *Camera) Name() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	if caps, err := c.probe(); err == nil && caps.card != "" {
		return caps.card
	}
	return c.devName
}

func (c *Camera) Position() types.CameraPosition {
	return c.position
}

func (c *Camera) SetFPS(fps int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.fps = fps
}

// probe reads the device capabilities, opening the device briefly when not streaming.
// Callers hold c.lock.
func (c *Camera) probe() (*capabilities, error) {
	if c.caps != nil {
		return c.caps, nil
	}

	camera := c.camera
	if camera == nil {
		var err error
		camera, err = device.Open(c.devName, device.WithBufferSize(1))
		if err != nil {
			return nil, err
		}
		defer camera.Close()
	}

	caps, err := probeDevice(camera)
	if err != nil {
		return nil, err
	}
	c.caps = caps

	return caps, nil
}

func (c *Camera) setCtrl(id v4l2.CtrlID, value v4l2.CtrlValue) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	caps, err := c.probe()
	if err != nil {
		return err
	}
	if !caps.hasCtrl(id) {
		return capture.ErrUnsupported
	}
	c.settings[id] = value

	return c.applySetting(id, value)
}

func (c *Camera) applySettings() {
	if c.camera == nil {
		return
	}
	for k, v := range c.settings {
		if err := c.camera.SetControlValue(k, v); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", k, v, err)
		}
	}
}

func (c *Camera) applySetting(k v4l2.CtrlID, v v4l2.CtrlValue) error {
	if c.camera == nil {
		return nil
	}

	return c.camera.SetControlValue(k, v)
}

func (c *Camera) SetAutoFocusRangeRestriction(r capture.FocusRange) error {
	value := focusRangeAuto
	switch r {
	case capture.FocusRangeNear:
		value = focusRangeMacro
	case capture.FocusRangeFar:
		value = focusRangeInfinity
	}
	return c.setCtrl(CtrlAutoFocusRange, value)
}

func (c *Camera) SetFocusMode(m capture.FocusMode) error {
	var value v4l2.CtrlValue
	if m != capture.FocusModeLocked {
		value = 1
	}
	return c.setCtrl(CtrlFocusAuto, value)
}

func (c *Camera) SetExposureMode(m capture.ExposureMode) error {
	value := exposureAperturePriority
	if m == capture.ExposureModeLocked {
		value = exposureManual
	}
	return c.setCtrl(CtrlExposureAuto, value)
}

// SetFocusPointOfInterest records p. UVC has no metering-region control to apply it to.
func (c *Camera) SetFocusPointOfInterest(p types.Point) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	c.lock.Lock()
	c.focusPoint = p
	c.lock.Unlock()
	logger.Debugf("camera(%s): focus point of interest %.3f,%.3f", c.devName, p.X, p.Y)
	return nil
}

func (c *Camera) SetExposurePointOfInterest(p types.Point) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	c.lock.Lock()
	c.exposurePoint = p
	c.lock.Unlock()
	logger.Debugf("camera(%s): exposure point of interest %.3f,%.3f", c.devName, p.X, p.Y)
	return nil
}

func (c *Camera) PointsOfInterest() (focus, exposure types.Point) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.focusPoint, c.exposurePoint
}

func (c *Camera) SupportsPreset(p capture.Preset) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	caps, err := c.probe()
	if err != nil {
		logger.Warnf("camera(%s): probe: %s", c.devName, err)
		return false
	}
	return caps.supports(p)
}

func (c *Camera) IsLowLightBoostSupported() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	caps, err := c.probe()
	return err == nil && caps.hasCtrl(CtrlBacklightCompensation)
}

// SetAutomaticallyEnablesLowLightBoost maps low light boost onto backlight compensation.
func (c *Camera) SetAutomaticallyEnablesLowLightBoost(enabled bool) error {
	c.lock.Lock()
	var value v4l2.CtrlValue
	caps, err := c.probe()
	if err == nil && caps.hasCtrl(CtrlBacklightCompensation) {
		ctrl := caps.ctrls[CtrlBacklightCompensation]
		value = v4l2.CtrlValue(ctrl.Default)
		if enabled {
			value = v4l2.CtrlValue(ctrl.Maximum)
		}
	}
	c.lock.Unlock()

	return c.setCtrl(CtrlBacklightCompensation, value)
}

func (c *Camera) HasTorch() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	caps, err := c.probe()
	return err == nil && caps.hasCtrl(CtrlFlashLEDMode)
}

func (c *Camera) TorchMode() capture.TorchMode {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.torch
}

func (c *Camera) SetTorchMode(m capture.TorchMode) error {
	value := flashNone
	if m == capture.TorchOn {
		value = flashTorch
	}
	if err := c.setCtrl(CtrlFlashLEDMode, value); err != nil {
		return err
	}
	c.lock.Lock()
	c.torch = m
	c.lock.Unlock()

	return nil
}

// Controls lists the scanner related controls the device supports, with current values.
func (c *Camera) Controls() ([]ControlInfo, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	camera := c.camera
	if camera == nil {
		var err error
		camera, err = device.Open(c.devName, device.WithBufferSize(1))
		if err != nil {
			return nil, err
		}
		defer camera.Close()
	}

	var res []ControlInfo
	for _, id := range knownCtrlIDs {
		ctrl, err := v4l2.GetControl(camera.Fd(), id)
		if err != nil {
			logger.Debugf("The device does not support control(%d)", id)
			continue
		}
		info, err := ctrlToInfo(ctrl)
		if err != nil {
			return nil, err
		}
		res = append(res, info)
	}

	return res, nil
}

func (c *Camera) NewInput() (capture.Input, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, err := c.probe(); err != nil {
		return nil, fmt.Errorf("open %s: %w", c.devName, err)
	}
	return &input{cam: c}, nil
}

// start opens the device streaming format at width x height. Callers hold c.lock.
func (c *Camera) start(ctx context.Context, format v4l2.FourCCType, width, height int) (<-chan []byte, v4l2.PixFormat, error) {
	if c.camera != nil {
		return nil, v4l2.PixFormat{}, ErrStarted
	}
	logger.Infof("start camera %s in %d*%d", c.devName, width, height)

	camera, err := device.Open(
		c.devName,
		device.WithBufferSize(1),
		device.WithFPS(uint32(c.fps)),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: format,
			Width:       uint32(width),
			Height:      uint32(height),
			Field:       v4l2.FieldNone,
		}),
	)
	if err != nil {
		return nil, v4l2.PixFormat{}, err
	}

	pix, err := camera.GetPixFormat()
	if err != nil {
		pix = v4l2.PixFormat{PixelFormat: format, Width: uint32(width), Height: uint32(height)}
	}

	newCtx, cancel := context.WithCancel(ctx)
	if err = camera.Start(newCtx); err != nil {
		cancel()
		_ = camera.Close()
		return nil, v4l2.PixFormat{}, err
	}
	c.camera = camera
	c.cancel = cancel
	c.applySettings()

	return camera.GetOutput(), pix, nil
}

func (c *Camera) stop() error {
	if c.cancel != nil {
		// let the stream goroutine observe ctx.Done and stop the device before Close
		c.cancel()
		time.Sleep(100 * time.Millisecond)
		c.cancel = nil
	}
	if c.camera != nil {
		err := c.camera.Close()
		c.camera = nil
		return err
	}
	return nil
}
