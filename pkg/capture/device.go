package capture

import (
	"context"
	"errors"
	"sync"

	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

var (
	ErrNotLocked   = errors.New("device is not locked for configuration")
	ErrUnsupported = errors.New("not supported by device")
)

type FocusMode int

const (
	FocusModeLocked FocusMode = iota
	FocusModeAutoFocus
	FocusModeContinuousAutoFocus
)

type ExposureMode int

const (
	ExposureModeLocked ExposureMode = iota
	ExposureModeAutoExpose
	ExposureModeContinuousAutoExposure
)

type FocusRange int

const (
	FocusRangeNone FocusRange = iota
	FocusRangeNear
	FocusRangeFar
)

type TorchMode int

const (
	TorchOff TorchMode = iota
	TorchOn
)

// Device is a handle to a physical camera. Every setter requires the caller to hold the
// configuration lock (LockForConfiguration ... UnlockForConfiguration) and returns
// ErrNotLocked otherwise.
type Device interface {
	ID() string
	Name() string
	Position() types.CameraPosition

	LockForConfiguration() error
	UnlockForConfiguration()

	SetAutoFocusRangeRestriction(r FocusRange) error
	SetFocusMode(m FocusMode) error
	SetExposureMode(m ExposureMode) error
	// Points of interest are normalized device coordinates, (0,0) top left to (1,1) bottom right.
	SetFocusPointOfInterest(p types.Point) error
	SetExposurePointOfInterest(p types.Point) error

	SupportsPreset(p Preset) bool
	IsLowLightBoostSupported() bool
	SetAutomaticallyEnablesLowLightBoost(enabled bool) error

	HasTorch() bool
	TorchMode() TorchMode
	SetTorchMode(m TorchMode) error

	// NewInput creates a session input streaming from this device.
	NewInput() (Input, error)
}

// WideColorDevice is implemented by devices that can pick a wide color space on their own.
type WideColorDevice interface {
	ConfigureWideColor() error
}

// Input streams frames from a device while its session runs.
type Input interface {
	Device() Device
	// Start opens the stream at the preset resolution. The channel is closed when the
	// stream ends, either through Stop or ctx cancellation.
	Start(ctx context.Context, preset Preset) (<-chan frame.Frame, error)
	Stop() error
}

// ConfigLock is the lock/unlock bracket embedded by device backends.
type ConfigLock struct {
	mu     sync.Mutex
	state  sync.Mutex
	locked bool
}

// LockForConfiguration blocks until no other holder configures the device.
func (l *ConfigLock) LockForConfiguration() error {
	l.mu.Lock()
	l.state.Lock()
	l.locked = true
	l.state.Unlock()
	return nil
}

func (l *ConfigLock) UnlockForConfiguration() {
	l.state.Lock()
	if !l.locked {
		l.state.Unlock()
		return
	}
	l.locked = false
	l.state.Unlock()
	l.mu.Unlock()
}

// CheckLocked returns ErrNotLocked unless the configuration lock is held.
func (l *ConfigLock) CheckLocked() error {
	l.state.Lock()
	defer l.state.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	return nil
}
