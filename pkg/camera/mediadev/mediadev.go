// Package mediadev is a capture backend on top of pion/mediadevices. It trades the
// control surface of the V4L2 backend for portable device discovery.
package mediadev

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/prop"
	"go.uber.org/zap"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
	"qrprocess-pi/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Camera is a video input device known to mediadevices. It only supports the continuous
// auto modes the drivers run in by default.
type Camera struct {
	capture.ConfigLock

	info     mediadevices.MediaDeviceInfo
	position types.CameraPosition

	mu            sync.Mutex
	focusPoint    types.Point
	exposurePoint types.Point
}

func (c *Camera) ID() string                     { return c.info.DeviceID }
func (c *Camera) Name() string                   { return c.info.Label }
func (c *Camera) Position() types.CameraPosition { return c.position }

func (c *Camera) SetAutoFocusRangeRestriction(capture.FocusRange) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	return capture.ErrUnsupported
}

func (c *Camera) SetFocusMode(m capture.FocusMode) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	if m != capture.FocusModeContinuousAutoFocus {
		return capture.ErrUnsupported
	}
	return nil
}

func (c *Camera) SetExposureMode(m capture.ExposureMode) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	if m != capture.ExposureModeContinuousAutoExposure {
		return capture.ErrUnsupported
	}
	return nil
}

func (c *Camera) SetFocusPointOfInterest(p types.Point) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	c.mu.Lock()
	c.focusPoint = p
	c.mu.Unlock()
	return nil
}

func (c *Camera) SetExposurePointOfInterest(p types.Point) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	c.mu.Lock()
	c.exposurePoint = p
	c.mu.Unlock()
	return nil
}

// SupportsPreset is always true: sizes are passed as preferences and the driver picks
// the closest mode.
func (c *Camera) SupportsPreset(capture.Preset) bool {
	return true
}

func (c *Camera) IsLowLightBoostSupported() bool { return false }

func (c *Camera) SetAutomaticallyEnablesLowLightBoost(bool) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	return capture.ErrUnsupported
}

func (c *Camera) HasTorch() bool               { return false }
func (c *Camera) TorchMode() capture.TorchMode { return capture.TorchOff }

func (c *Camera) SetTorchMode(capture.TorchMode) error {
	if err := c.CheckLocked(); err != nil {
		return err
	}
	return capture.ErrUnsupported
}

func (c *Camera) NewInput() (capture.Input, error) {
	return &input{cam: c}, nil
}

type input struct {
	cam *Camera

	mu     sync.Mutex
	track  mediadevices.Track
	cancel context.CancelFunc
	done   chan struct{}
}

func (in *input) Device() capture.Device {
	return in.cam
}

func (in *input) Start(ctx context.Context, preset capture.Preset) (<-chan frame.Frame, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.track != nil {
		return nil, errors.New("input already started")
	}

	w, h := preset.Dimensions()
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(in.cam.info.DeviceID)
			if w > 0 {
				c.Width = prop.Int(w)
				c.Height = prop.Int(h)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user media %s: %w", in.cam.info.Label, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, errors.New("no video track")
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		_ = tracks[0].Close()
		return nil, errors.New("unexpected track type")
	}

	ctx, cancel := context.WithCancel(ctx)
	in.track = track
	in.cancel = cancel
	in.done = make(chan struct{})

	out := make(chan frame.Frame, 1)
	go in.read(ctx, track, out, in.done)

	return out, nil
}

func (in *input) read(ctx context.Context, track *mediadevices.VideoTrack, out chan<- frame.Frame, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	reader := track.NewReader(false)
	start := time.Now()
	for {
		img, release, err := reader.Read()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnf("mediadev: read %s: %s", in.cam.info.Label, err)
			}
			return
		}
		f := frame.Frame{
			Format: frame.FormatImage,
			Img:    cloneImage(img),
			Width:  img.Bounds().Dx(),
			Height: img.Bounds().Dy(),
			Time:   types.NewTime(time.Since(start)),
		}
		release()

		select {
		case <-ctx.Done():
			return
		case out <- f:
		default:
		}
	}
}

func (in *input) Stop() error {
	in.mu.Lock()
	track, cancel, done := in.track, in.cancel, in.done
	in.track, in.cancel, in.done = nil, nil, nil
	in.mu.Unlock()

	if track == nil {
		return nil
	}
	cancel()
	// closing the track unblocks the pending Read
	err := track.Close()
	<-done

	return err
}

// cloneImage copies img out of the driver buffer, which is reused after release.
func cloneImage(img image.Image) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}

// Selector resolves positions against mediadevices' enumeration. BackMatch and FrontMatch
// are label substrings; a label containing "front" marks a front camera otherwise.
type Selector struct {
	BackMatch  string
	FrontMatch string

	enumerate func() []mediadevices.MediaDeviceInfo

	mu      sync.Mutex
	cameras map[string]*Camera
}

func NewSelector(backMatch, frontMatch string) *Selector {
	return &Selector{
		BackMatch:  backMatch,
		FrontMatch: frontMatch,
		enumerate:  mediadevices.EnumerateDevices,
		cameras:    make(map[string]*Camera),
	}
}

func (s *Selector) Device(position types.CameraPosition) capture.Device {
	if position != types.PositionBack && position != types.PositionFront {
		return nil
	}
	for _, info := range s.enumerate() {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		if s.matches(info.Label, position) {
			return s.camera(info, position)
		}
	}
	logger.Warnf("mediadev: no %s camera found", position)

	return nil
}

func (s *Selector) matches(label string, position types.CameraPosition) bool {
	l := strings.ToLower(label)
	match := s.BackMatch
	if position == types.PositionFront {
		match = s.FrontMatch
	}
	if match != "" {
		return strings.Contains(l, strings.ToLower(match))
	}
	front := strings.Contains(l, "front")
	return front == (position == types.PositionFront)
}

func (s *Selector) camera(info mediadevices.MediaDeviceInfo, position types.CameraPosition) *Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cameras == nil {
		s.cameras = make(map[string]*Camera)
	}
	c, ok := s.cameras[info.DeviceID]
	if !ok {
		c = &Camera{info: info, position: position}
		s.cameras[info.DeviceID] = c
	}
	return c
}
