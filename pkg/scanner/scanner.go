package scanner

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"qrprocess-pi/pkg/camera"
	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/decoder"
	"qrprocess-pi/pkg/dispatch"
	"qrprocess-pi/pkg/permission"
	"qrprocess-pi/pkg/types"
	"qrprocess-pi/pkg/utils"
)

// DeviceSelector resolves the camera for a position, or nil when there is none.
type DeviceSelector interface {
	Device(position types.CameraPosition) capture.Device
}

type Option func(s *Scanner)

func WithSelector(sel DeviceSelector) Option {
	return func(s *Scanner) {
		s.selector = sel
	}
}

func WithAuthorizer(auth permission.Authorizer) Option {
	return func(s *Scanner) {
		s.gate = permission.NewGate(auth)
	}
}

func WithDecoder(d capture.Decoder) Option {
	return func(s *Scanner) {
		s.decoder = d
	}
}

// WithPosition picks the camera to scan with. The default is the back camera.
func WithPosition(p types.CameraPosition) Option {
	return func(s *Scanner) {
		s.position = p
	}
}

// WithUIQueue makes the scanner deliver UI work to q instead of a queue of its own.
// The caller keeps ownership of q.
func WithUIQueue(q *dispatch.Queue) Option {
	return func(s *Scanner) {
		s.ui = q
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithSimulator skips camera wiring entirely, for hosts without capture hardware.
func WithSimulator() Option {
	return func(s *Scanner) {
		s.simulator = true
	}
}

// Scanner drives a capture session that reports the codes seen by a camera to a Delegate.
//
// Permission checks, setup, start and stop run in order on a control queue. Detections
// are handled on a decode queue in frame order. Preview layout, rect of interest updates
// and UI notifications run on the UI queue.
type Scanner struct {
	codeTypes []types.CodeType
	position  types.CameraPosition
	simulator bool

	selector DeviceSelector
	gate     *permission.Gate
	decoder  capture.Decoder
	logger   *zap.SugaredLogger

	control *dispatch.Queue
	decode  *dispatch.Queue
	ui      *dispatch.Queue
	ownsUI  bool

	session  *capture.Session
	state    *lifecycle
	delegate delegateRef

	mu     sync.RWMutex
	device capture.Device
	input  capture.Input
	output *capture.MetadataOutput
	layer  *capture.PreviewLayer

	closed    atomic.Bool
	closeOnce sync.Once
}

// New builds a scanner recognizing codeTypes. Nothing touches the camera until a delegate
// is set.
func New(codeTypes []types.CodeType, opts ...Option) *Scanner {
	s := &Scanner{
		codeTypes: slices.Clone(codeTypes),
		position:  types.PositionBack,
		session:   capture.NewSession(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = utils.GetLogger()
	}
	if s.selector == nil {
		s.selector = camera.NewSelector("", "")
	}
	if s.gate == nil {
		s.gate = permission.NewGate(permission.DeviceNodeAuthorizer{Path: camera.DefaultDevice})
	}
	if s.decoder == nil {
		s.decoder = decoder.New()
	}
	if s.ui == nil {
		s.ui = dispatch.New("scanner.ui")
		s.ownsUI = true
	}
	s.control = dispatch.New("scanner.control")
	s.decode = dispatch.New("scanner.decode")
	s.state = newLifecycle(s.logger)

	return s
}

func (s *Scanner) CodeTypes() []types.CodeType {
	return slices.Clone(s.codeTypes)
}

func (s *Scanner) Session() *capture.Session {
	return s.session
}

// Device is the camera configured by the last successful setup, or nil.
func (s *Scanner) Device() capture.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// State is the current lifecycle state, one of the State constants.
func (s *Scanner) State() string {
	return s.state.current()
}

// IsCapturing reports whether the session is streaming.
func (s *Scanner) IsCapturing() bool {
	return s.session.IsRunning()
}

// SetDelegate stores d and runs the setup sequence: permission, preview layer, input,
// output, then DidSetup on the UI queue. Calling it again replaces the delegate and
// reconfigures the input. A nil delegate only clears the reference.
func (s *Scanner) SetDelegate(d Delegate) {
	s.delegate.set(d)
	if d == nil {
		return
	}
	s.control.Async(s.setup)
}

func (s *Scanner) setup() {
	if err := s.gate.Resolve(context.Background()); err != nil {
		s.report(newError(KindNotAuthorized, err))
		return
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return
	}
	prev := s.state.current()
	if err := s.state.fire(evConfigure); err != nil {
		s.mu.Unlock()
		s.report(newError(KindOther, err))
		return
	}
	if s.layer == nil {
		s.layer = capture.NewPreviewLayer(s.session)
		s.layer.SetVideoGravity(capture.GravityResizeAspectFill)
		s.layer.SetMirrored(s.position == types.PositionFront)
	}

	if s.simulator {
		s.logger.Infof("scanner: simulator, skipping camera setup")
	} else if err := s.configureInput(); err != nil {
		s.state.restore(prev)
		s.mu.Unlock()
		s.report(err)
		return
	}
	_ = s.state.fire(evConfigureOutput)
	if !s.simulator {
		if err := s.configureOutput(); err != nil {
			s.state.restore(prev)
			s.mu.Unlock()
			s.report(err)
			return
		}
	}
	_ = s.state.fire(evSetupDone)
	if s.session.IsRunning() {
		_ = s.state.fire(evStart)
	}
	layer := s.layer
	s.mu.Unlock()

	s.ui.Async(func() {
		d := s.delegate.get()
		if d == nil {
			return
		}
		if preview := d.VideoPreview(); preview != nil {
			layer.InsertInto(preview, 0)
		}
		s.layoutFrames()
		d.DidSetup(s)
	})
}

// configureInput attaches the camera at s.position as the only session input. On error the
// session keeps no half-configured input. Called with s.mu held.
func (s *Scanner) configureInput() *Error {
	dev := s.selector.Device(s.position)
	if dev == nil {
		return newError(KindDeviceNotFound, nil)
	}

	if err := dev.LockForConfiguration(); err != nil {
		return Wrap(err)
	}
	defer dev.UnlockForConfiguration()

	cfg := s.session.BeginConfiguration()
	if err := s.tolerate(dev.SetAutoFocusRangeRestriction(capture.FocusRangeNear), "focus range"); err != nil {
		cfg.Rollback()
		return Wrap(err)
	}
	if err := s.tolerate(dev.SetFocusMode(capture.FocusModeContinuousAutoFocus), "focus mode"); err != nil {
		cfg.Rollback()
		return Wrap(err)
	}
	if err := s.tolerate(dev.SetExposureMode(capture.ExposureModeContinuousAutoExposure), "exposure mode"); err != nil {
		cfg.Rollback()
		return Wrap(err)
	}

	for _, old := range cfg.Inputs() {
		cfg.RemoveInput(old)
	}
	if preset, ok := capture.BestPreset(dev, capture.ScanPresets); ok {
		cfg.SetPreset(preset)
	}
	in, err := dev.NewInput()
	if err != nil {
		cfg.Rollback()
		return Wrap(err)
	}
	if err := cfg.AddInput(in); err != nil {
		cfg.Rollback()
		return Wrap(err)
	}
	if err := cfg.Commit(); err != nil {
		s.session.RemoveInput(in)
		return Wrap(err)
	}

	s.device = dev
	s.input = in

	// the input is committed: failures from here on are reported, setup goes on
	if err := s.session.Configure(func(c *capture.Configuration) error {
		c.SetAutomaticallyConfiguresWideColor(true)
		return nil
	}); err != nil {
		s.report(Wrap(err))
	}
	if dev.IsLowLightBoostSupported() {
		if err := dev.SetAutomaticallyEnablesLowLightBoost(true); err != nil {
			s.report(Wrap(err))
		}
	}

	s.logger.Infof("scanner: using %s camera %s (%s), preset %s", s.position, dev.Name(), dev.ID(), s.session.Preset())

	return nil
}

// configureOutput creates the metadata output once and keeps it attached. Called with
// s.mu held.
func (s *Scanner) configureOutput() *Error {
	if s.output == nil {
		s.output = capture.NewMetadataOutput(s.decoder)
		s.output.SetObjectsHandler(&sink{scanner: s}, s.decode)
	}
	s.output.SetObjectTypes(s.codeTypes)
	if slices.Contains(s.session.Outputs(), capture.Output(s.output)) {
		return nil
	}
	if err := s.session.AddOutput(s.output); err != nil {
		return Wrap(err)
	}

	return nil
}

// tolerate drops ErrUnsupported so that cameras lacking a control still scan.
func (s *Scanner) tolerate(err error, what string) error {
	if errors.Is(err, capture.ErrUnsupported) {
		s.logger.Debugf("scanner: %s not supported by camera", what)
		return nil
	}
	return err
}

// StartCapturing checks permission again and starts the session. Once running, the
// focus and exposure points and the decode rect follow the delegate's rect of interest.
func (s *Scanner) StartCapturing() {
	s.control.Async(s.start)
}

func (s *Scanner) start() {
	if err := s.gate.Resolve(context.Background()); err != nil {
		s.report(newError(KindNotAuthorized, err))
		return
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return
	}
	if !s.session.IsRunning() {
		if !s.state.can(evStart) {
			s.mu.Unlock()
			s.report(newError(KindDeviceInvalid, nil))
			return
		}
		if err := s.session.StartRunning(); err != nil {
			s.mu.Unlock()
			s.report(Wrap(err))
			return
		}
		_ = s.state.fire(evStart)
	}
	s.mu.Unlock()

	s.ui.Async(s.configureInterest)
}

// configureInterest points focus and exposure at the center of the rect of interest and
// restricts decoding to it. Runs on the UI queue.
func (s *Scanner) configureInterest() {
	rect := s.interestRect()
	if rect.IsEmpty() {
		return
	}

	s.mu.RLock()
	layer, dev, output := s.layer, s.device, s.output
	s.mu.RUnlock()
	if layer == nil {
		return
	}

	if dev != nil {
		if err := s.pointAt(dev, layer.CaptureDevicePointConverted(rect.Center())); err != nil {
			s.report(Wrap(err))
		}
	}
	if output != nil {
		roi := layer.MetadataOutputRectConverted(rect)
		output.SetRectOfInterest(roi)
		s.logger.Debugf("scanner: rect of interest %+v", roi)
	}
}

func (s *Scanner) pointAt(dev capture.Device, p types.Point) error {
	if err := dev.LockForConfiguration(); err != nil {
		return err
	}
	defer dev.UnlockForConfiguration()

	if err := s.tolerate(dev.SetExposurePointOfInterest(p), "exposure point"); err != nil {
		return err
	}
	return s.tolerate(dev.SetFocusPointOfInterest(p), "focus point")
}

// interestRect is the delegate's rect of interest in preview coordinates, or the zero
// rect while the preview has no size.
func (s *Scanner) interestRect() types.Rect {
	d := s.delegate.get()
	if d == nil {
		return types.ZeroRect
	}
	preview, roi := d.VideoPreview(), d.RectOfInterest()
	if preview == nil || roi == nil || preview.Bounds().IsEmpty() {
		return types.ZeroRect
	}

	return roi.ConvertRect(roi.Bounds(), preview)
}

// StopCapturing stops the session, then notifies DidEndScanning.
func (s *Scanner) StopCapturing() {
	s.control.Async(s.stop)
}

func (s *Scanner) stop() {
	s.mu.Lock()
	s.session.StopRunning()
	if s.state.can(evStop) {
		_ = s.state.fire(evStop)
	}
	s.mu.Unlock()

	s.ui.Async(func() {
		if d := s.delegate.get(); d != nil {
			d.DidEndScanning(s)
		}
	})
}

// LayoutFrames sizes the preview layer to the delegate's preview surface.
func (s *Scanner) LayoutFrames() {
	s.ui.Async(s.layoutFrames)
}

func (s *Scanner) layoutFrames() {
	d := s.delegate.get()
	s.mu.RLock()
	layer := s.layer
	s.mu.RUnlock()
	if d == nil || layer == nil {
		return
	}
	preview := d.VideoPreview()
	if preview == nil {
		layer.SetFrame(types.ZeroRect)
		return
	}
	layer.SetFrame(preview.Bounds())
	preview.SetNeedsLayout()
}

// ToggleTorch switches the torch of the active camera on or off. Cameras without a torch
// are left alone.
func (s *Scanner) ToggleTorch() {
	s.control.Async(func() {
		dev := s.Device()
		if dev == nil || !dev.HasTorch() {
			return
		}
		if err := dev.LockForConfiguration(); err != nil {
			s.report(Wrap(err))
			return
		}
		defer dev.UnlockForConfiguration()

		mode := capture.TorchOn
		if dev.TorchMode() == capture.TorchOn {
			mode = capture.TorchOff
		}
		if err := dev.SetTorchMode(mode); err != nil {
			s.report(Wrap(err))
			return
		}
		s.logger.Infof("scanner: torch %v", mode == capture.TorchOn)
	})
}

// Flush waits until the control, decode and UI queues have run everything submitted
// before the call.
func (s *Scanner) Flush() {
	s.control.Flush()
	s.decode.Flush()
	s.ui.Flush()
}

// Close tears the scanner down: the session stops, the preview layer leaves its surface,
// the delegate is dropped and the output is removed. Safe to call more than once.
func (s *Scanner) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.mu.Lock()
		s.session.StopRunning()
		if s.layer != nil {
			s.layer.RemoveFromSuperlayer()
			s.layer.Detach()
		}
		s.delegate.set(nil)
		if s.output != nil {
			s.session.RemoveOutput(s.output)
		}
		_ = s.state.fire(evTeardown)
		s.mu.Unlock()

		s.control.Close()
		s.decode.Close()
		if s.ownsUI {
			s.ui.Close()
		}
	})
}

// report logs err and hands it to the delegate on the UI queue.
func (s *Scanner) report(err *Error) {
	s.logger.Warn(err)
	s.ui.Async(func() {
		if d := s.delegate.get(); d != nil {
			d.DidReceiveError(s, err)
		}
	})
}
