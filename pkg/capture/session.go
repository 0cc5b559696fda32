package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"qrprocess-pi/pkg/frame"
)

var (
	ErrInputAttached       = errors.New("session already has an input")
	ErrOutputAttached      = errors.New("session already has an output")
	ErrConfigurationClosed = errors.New("configuration already committed or rolled back")
)

// Session wires at most one input to at most one output and runs the frame flow between
// them. Changes are made through a Configuration bracket and become visible atomically
// on Commit.
type Session struct {
	id string

	cfgMu sync.Mutex

	mu       sync.Mutex
	cfg      sessionConfig
	streams  map[Input]*stream
	workers  []*worker
	previews []*PreviewLayer

	running atomic.Bool
	fanout  atomic.Pointer[[]*worker]

	frames  atomic.Uint64
	dropped atomic.Uint64
}

type sessionConfig struct {
	inputs    []Input
	outputs   []Output
	preset    Preset
	wideColor bool
}

func (c sessionConfig) clone() sessionConfig {
	c.inputs = slices.Clone(c.inputs)
	c.outputs = slices.Clone(c.outputs)
	return c
}

func NewSession() *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     sessionConfig{preset: PresetHigh},
		streams: make(map[Input]*stream),
	}
	s.fanout.Store(&[]*worker{})

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Inputs() []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cfg.inputs)
}

func (s *Session) Outputs() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cfg.outputs)
}

func (s *Session) Preset() Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.preset
}

func (s *Session) AutomaticallyConfiguresWideColor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.wideColor
}

func (s *Session) IsRunning() bool {
	return s.running.Load()
}

type Stats struct {
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
}

// Stats counts frames read from inputs and frames dropped by busy stages.
func (s *Session) Stats() Stats {
	return Stats{Frames: s.frames.Load(), Dropped: s.dropped.Load()}
}

// Configuration is an open begin/commit bracket on a session. Only one is open at a time;
// BeginConfiguration blocks until the previous one is committed or rolled back.
type Configuration struct {
	s    *Session
	cfg  sessionConfig
	done bool
}

func (s *Session) BeginConfiguration() *Configuration {
	s.cfgMu.Lock()
	s.mu.Lock()
	cfg := s.cfg.clone()
	s.mu.Unlock()

	return &Configuration{s: s, cfg: cfg}
}

// Configure runs fn inside a bracket, committing only when fn succeeds.
func (s *Session) Configure(fn func(c *Configuration) error) error {
	c := s.BeginConfiguration()
	if err := fn(c); err != nil {
		c.Rollback()
		return err
	}
	return c.Commit()
}

func (c *Configuration) Inputs() []Input {
	return slices.Clone(c.cfg.inputs)
}

func (c *Configuration) CanAddInput(in Input) bool {
	return !c.done && in != nil && len(c.cfg.inputs) == 0
}

func (c *Configuration) AddInput(in Input) error {
	if c.done {
		return ErrConfigurationClosed
	}
	if in == nil {
		return errors.New("nil input")
	}
	if len(c.cfg.inputs) > 0 {
		return ErrInputAttached
	}
	c.cfg.inputs = append(c.cfg.inputs, in)
	return nil
}

func (c *Configuration) RemoveInput(in Input) {
	if c.done {
		return
	}
	c.cfg.inputs = slices.DeleteFunc(c.cfg.inputs, func(i Input) bool { return i == in })
}

func (c *Configuration) Outputs() []Output {
	return slices.Clone(c.cfg.outputs)
}

func (c *Configuration) AddOutput(o Output) error {
	if c.done {
		return ErrConfigurationClosed
	}
	if o == nil {
		return errors.New("nil output")
	}
	if len(c.cfg.outputs) > 0 {
		return ErrOutputAttached
	}
	c.cfg.outputs = append(c.cfg.outputs, o)
	return nil
}

func (c *Configuration) RemoveOutput(o Output) {
	if c.done {
		return
	}
	c.cfg.outputs = slices.DeleteFunc(c.cfg.outputs, func(x Output) bool { return x == o })
}

func (c *Configuration) SetPreset(p Preset) {
	if c.done {
		return
	}
	c.cfg.preset = p
}

func (c *Configuration) SetAutomaticallyConfiguresWideColor(enabled bool) {
	if c.done {
		return
	}
	c.cfg.wideColor = enabled
}

// Commit applies every staged change at once. When the session is running, removed
// inputs stop streaming and added inputs start before Commit returns.
func (c *Configuration) Commit() error {
	if c.done {
		return ErrConfigurationClosed
	}
	c.done = true
	defer c.s.cfgMu.Unlock()

	return c.s.apply(c.cfg)
}

// Rollback discards the staged changes.
func (c *Configuration) Rollback() {
	if c.done {
		return
	}
	c.done = true
	c.s.cfgMu.Unlock()
}

func (s *Session) AddInput(in Input) error {
	return s.Configure(func(c *Configuration) error { return c.AddInput(in) })
}

func (s *Session) RemoveInput(in Input) {
	_ = s.Configure(func(c *Configuration) error { c.RemoveInput(in); return nil })
}

func (s *Session) AddOutput(o Output) error {
	return s.Configure(func(c *Configuration) error { return c.AddOutput(o) })
}

func (s *Session) RemoveOutput(o Output) {
	_ = s.Configure(func(c *Configuration) error { c.RemoveOutput(o); return nil })
}

func (s *Session) apply(cfg sessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	if !s.running.Load() {
		return nil
	}

	s.rebuildWorkersLocked()

	var restart []Input
	for _, in := range old.inputs {
		kept := slices.Contains(cfg.inputs, in)
		if !kept || old.preset != cfg.preset {
			if st, ok := s.streams[in]; ok {
				st.stop()
				delete(s.streams, in)
			}
		}
		if kept && old.preset != cfg.preset {
			restart = append(restart, in)
		}
	}
	for _, in := range cfg.inputs {
		if !slices.Contains(old.inputs, in) {
			restart = append(restart, in)
		}
	}

	var errs []error
	for _, in := range restart {
		st, err := s.startStream(in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.streams[in] = st
	}

	return errors.Join(errs...)
}

// StartRunning starts streaming every attached input into the outputs.
// On failure the session is left stopped.
func (s *Session) StartRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return nil
	}
	s.running.Store(true)
	s.rebuildWorkersLocked()

	for _, in := range s.cfg.inputs {
		st, err := s.startStream(in)
		if err != nil {
			s.stopLocked()
			return err
		}
		s.streams[in] = st
	}
	logger.Infof("session(%s): running with %d input(s), preset %s", s.id, len(s.cfg.inputs), s.cfg.preset)

	return nil
}

// StopRunning stops all streams. Frames already handed to a stage may still be processed.
func (s *Session) StopRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return
	}
	s.stopLocked()
	logger.Infof("session(%s): stopped", s.id)
}

func (s *Session) stopLocked() {
	s.running.Store(false)
	for in, st := range s.streams {
		st.stop()
		delete(s.streams, in)
	}
	s.fanout.Store(&[]*worker{})
	for _, w := range s.workers {
		w.stop()
	}
	s.workers = nil
}

func (s *Session) attachPreview(l *PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.previews, l) {
		return
	}
	s.previews = append(s.previews, l)
	if s.running.Load() {
		s.rebuildWorkersLocked()
	}
}

func (s *Session) detachPreview(l *PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = slices.DeleteFunc(s.previews, func(p *PreviewLayer) bool { return p == l })
	if s.running.Load() {
		s.rebuildWorkersLocked()
	}
}

// rebuildWorkersLocked keeps one worker per output and preview layer.
func (s *Session) rebuildWorkersLocked() {
	want := make([]frameConsumer, 0, len(s.cfg.outputs)+len(s.previews))
	for _, o := range s.cfg.outputs {
		want = append(want, o)
	}
	for _, p := range s.previews {
		want = append(want, p)
	}

	var next []*worker
	for _, w := range s.workers {
		if slices.Contains(want, w.sink) {
			next = append(next, w)
		} else {
			w.stop()
		}
	}
	for _, c := range want {
		if !slices.ContainsFunc(next, func(w *worker) bool { return w.sink == c }) {
			next = append(next, newWorker(c, &s.dropped))
		}
	}
	s.workers = next
	fan := slices.Clone(next)
	s.fanout.Store(&fan)
}

type stream struct {
	in     Input
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) startStream(in Input) (*stream, error) {
	if s.cfg.wideColor {
		if wc, ok := in.Device().(WideColorDevice); ok {
			if err := wc.ConfigureWideColor(); err != nil {
				logger.Warnf("session(%s): wide color on %s: %s", s.id, in.Device().ID(), err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := in.Start(ctx, s.cfg.preset)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start input %s: %w", in.Device().ID(), err)
	}
	st := &stream{in: in, cancel: cancel, done: make(chan struct{})}
	go s.pump(ctx, st, frames)

	return st, nil
}

func (s *Session) pump(ctx context.Context, st *stream, frames <-chan frame.Frame) {
	defer close(st.done)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.frames.Add(1)
			for _, w := range *s.fanout.Load() {
				w.offer(delivery{f: f, in: st.in})
			}
		}
	}
}

func (st *stream) stop() {
	st.cancel()
	if err := st.in.Stop(); err != nil {
		logger.Warnf("stop input %s: %s", st.in.Device().ID(), err)
	}
	<-st.done
}

type delivery struct {
	f  frame.Frame
	in Input
}

// worker feeds one stage. The mailbox holds a single frame: while the stage is busy
// newer frames are dropped instead of blocking capture.
type worker struct {
	sink    frameConsumer
	mailbox chan delivery
	quit    chan struct{}
	done    chan struct{}
	dropped *atomic.Uint64
}

func newWorker(sink frameConsumer, dropped *atomic.Uint64) *worker {
	w := &worker{
		sink:    sink,
		mailbox: make(chan delivery, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		dropped: dropped,
	}
	go w.loop()

	return w
}

func (w *worker) offer(d delivery) {
	select {
	case w.mailbox <- d:
	default:
		w.dropped.Add(1)
	}
}

func (w *worker) loop() {
	defer close(w.done)
	out, _ := w.sink.(Output)
	for {
		select {
		case <-w.quit:
			return
		case d := <-w.mailbox:
			w.sink.consume(d.f, &Connection{Input: d.in, Output: out})
		}
	}
}

func (w *worker) stop() {
	close(w.quit)
	<-w.done
}
