package capture_test

import (
	"errors"
	"testing"
	"time"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/capture/capturetest"
	"qrprocess-pi/pkg/dispatch"
	"qrprocess-pi/pkg/types"
)

func TestConfigurationSingleInput(t *testing.T) {
	s := capture.NewSession()
	a, _ := capturetest.NewDevice("a", types.PositionBack).NewInput()
	b, _ := capturetest.NewDevice("b", types.PositionBack).NewInput()

	c := s.BeginConfiguration()
	if err := c.AddInput(a); err != nil {
		t.Fatal(err)
	}
	if c.CanAddInput(b) {
		t.Fatal("CanAddInput true with an input attached")
	}
	if err := c.AddInput(b); !errors.Is(err, capture.ErrInputAttached) {
		t.Fatalf("second AddInput: got %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	if got := s.Inputs(); len(got) != 1 || got[0] != a {
		t.Fatalf("inputs = %v", got)
	}

	// swap within one bracket
	c = s.BeginConfiguration()
	c.RemoveInput(a)
	if err := c.AddInput(b); err != nil {
		t.Fatal(err)
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	if got := s.Inputs(); len(got) != 1 || got[0] != b {
		t.Fatalf("inputs after swap = %v", got)
	}
}

func TestConfigurationRollback(t *testing.T) {
	s := capture.NewSession()
	in, _ := capturetest.NewDevice("a", types.PositionBack).NewInput()

	c := s.BeginConfiguration()
	_ = c.AddInput(in)
	c.SetPreset(capture.PresetHD1920x1080)
	c.Rollback()

	if len(s.Inputs()) != 0 {
		t.Fatal("rolled back input is attached")
	}
	if s.Preset() != capture.PresetHigh {
		t.Fatalf("preset = %s", s.Preset())
	}
	if err := c.Commit(); !errors.Is(err, capture.ErrConfigurationClosed) {
		t.Fatalf("commit after rollback: %v", err)
	}

	// the bracket is released
	done := make(chan struct{})
	go func() {
		s.BeginConfiguration().Rollback()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("configuration lock not released")
	}
}

func TestSessionDeliversDetections(t *testing.T) {
	dev := capturetest.NewDevice("a", types.PositionBack)
	in, _ := dev.NewInput()
	dec := &capturetest.Decoder{Objects: []capture.Object{{
		Type:    types.CodeQR,
		Bounds:  types.R(10, 10, 20, 20),
		Payload: capturetest.Str("hello"),
	}}}
	out := capture.NewMetadataOutput(dec)
	out.SetObjectTypes([]types.CodeType{types.CodeQR})

	q := dispatch.New("decode")
	defer q.Close()
	got := make(chan []capture.Object, 1)
	out.SetObjectsHandler(capture.ObjectsHandlerFunc(func(objs []capture.Object, conn *capture.Connection) {
		if conn.Input != in {
			t.Errorf("connection input = %v", conn.Input)
		}
		got <- objs
	}), q)

	s := capture.NewSession()
	if err := s.AddInput(in); err != nil {
		t.Fatal(err)
	}
	if err := s.AddOutput(out); err != nil {
		t.Fatal(err)
	}
	if err := s.StartRunning(); err != nil {
		t.Fatal(err)
	}
	defer s.StopRunning()
	if !s.IsRunning() {
		t.Fatal("session not running")
	}

	if !dev.Send(capturetest.GreyFrame(100, 100, 3*time.Second), time.Second) {
		t.Fatal("frame not consumed")
	}
	var objs []capture.Object
	select {
	case objs = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no detections delivered")
	}
	if len(objs) != 1 {
		t.Fatalf("got %d objects", len(objs))
	}
	if want := types.R(0.1, 0.1, 0.2, 0.2); !rectNear(objs[0].Bounds, want) {
		t.Errorf("bounds = %+v, want %+v", objs[0].Bounds, want)
	}
	if objs[0].Time.Seconds() != 3 {
		t.Errorf("time = %+v", objs[0].Time)
	}
	if v, ok := objs[0].StringValue(); !ok || v != "hello" {
		t.Errorf("payload = %q %v", v, ok)
	}
}

func TestSessionStopStopsInput(t *testing.T) {
	dev := capturetest.NewDevice("a", types.PositionBack)
	in, _ := dev.NewInput()
	s := capture.NewSession()
	_ = s.AddInput(in)
	if err := s.StartRunning(); err != nil {
		t.Fatal(err)
	}
	s.StopRunning()
	if s.IsRunning() {
		t.Fatal("session still running")
	}
	if dev.Send(capturetest.GreyFrame(4, 4, 0), 50*time.Millisecond) {
		t.Fatal("frame consumed after stop")
	}

	if err := s.StartRunning(); err != nil {
		t.Fatal(err)
	}
	defer s.StopRunning()
	if n := in.(*capturetest.Input).Starts(); n != 2 {
		t.Fatalf("input started %d times", n)
	}
}

func TestSessionStartFailure(t *testing.T) {
	dev := capturetest.NewDevice("a", types.PositionBack)
	dev.StartErr = errors.New("busy")
	in, _ := dev.NewInput()
	s := capture.NewSession()
	_ = s.AddInput(in)

	if err := s.StartRunning(); err == nil {
		t.Fatal("expected start error")
	}
	if s.IsRunning() {
		t.Fatal("session running after failed start")
	}
}

func TestCommitWhileRunningSwapsInput(t *testing.T) {
	devA := capturetest.NewDevice("a", types.PositionBack)
	devB := capturetest.NewDevice("b", types.PositionFront)
	a, _ := devA.NewInput()
	b, _ := devB.NewInput()

	s := capture.NewSession()
	_ = s.AddInput(a)
	if err := s.StartRunning(); err != nil {
		t.Fatal(err)
	}
	defer s.StopRunning()

	err := s.Configure(func(c *capture.Configuration) error {
		c.RemoveInput(a)
		c.SetPreset(capture.PresetHD1920x1080)
		return c.AddInput(b)
	})
	if err != nil {
		t.Fatal(err)
	}
	if devA.Send(capturetest.GreyFrame(4, 4, 0), 50*time.Millisecond) {
		t.Fatal("removed input still streaming")
	}
	if !devB.Send(capturetest.GreyFrame(4, 4, 0), time.Second) {
		t.Fatal("added input not streaming")
	}
	if p := b.(*capturetest.Input).Preset(); p != capture.PresetHD1920x1080 {
		t.Fatalf("input started with preset %s", p)
	}
}

func TestSessionDropsFramesWhileBusy(t *testing.T) {
	dev := capturetest.NewDevice("a", types.PositionBack)
	in, _ := dev.NewInput()
	release := make(chan struct{})
	blocking := &blockingDecoder{release: release, entered: make(chan struct{}, 16)}
	out := capture.NewMetadataOutput(blocking)
	out.SetObjectTypes([]types.CodeType{types.CodeQR})
	q := dispatch.New("decode")
	defer q.Close()
	out.SetObjectsHandler(capture.ObjectsHandlerFunc(func([]capture.Object, *capture.Connection) {}), q)

	s := capture.NewSession()
	_ = s.AddInput(in)
	_ = s.AddOutput(out)
	if err := s.StartRunning(); err != nil {
		t.Fatal(err)
	}

	dev.Send(capturetest.GreyFrame(4, 4, 0), time.Second)
	<-blocking.entered
	for i := 0; i < 5; i++ {
		if !dev.Send(capturetest.GreyFrame(4, 4, 0), time.Second) {
			t.Fatal("capture blocked by a busy output")
		}
	}
	close(release)
	s.StopRunning()

	st := s.Stats()
	if st.Frames < 5 {
		t.Errorf("frames = %d", st.Frames)
	}
	if st.Dropped < 3 {
		t.Errorf("dropped = %d while output was busy", st.Dropped)
	}
}
