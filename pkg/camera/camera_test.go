package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

func TestStreamFormat(t *testing.T) {
	caps := &capabilities{sizes: []frameSize{
		{format: v4l2.PixelFmtYUYV, minW: 640, minH: 480, maxW: 640, maxH: 480},
		{format: v4l2.PixelFmtMJPEG, minW: 1280, minH: 720, maxW: 1280, maxH: 720},
		{format: v4l2.PixelFmtMJPEG, minW: 1920, minH: 1080, maxW: 1920, maxH: 1080},
	}}

	format, w, h, ok := caps.streamFormat(capture.PresetHD1920x1080)
	if !ok || format != v4l2.PixelFmtMJPEG || w != 1920 || h != 1080 {
		t.Fatalf("1080p: %v %d %d %v", format, w, h, ok)
	}
	format, w, h, ok = caps.streamFormat(capture.PresetHigh)
	if !ok || format != v4l2.PixelFmtMJPEG || w != 1920 || h != 1080 {
		t.Fatalf("high: %v %d %d %v", format, w, h, ok)
	}
	format, _, _, ok = caps.streamFormat(capture.PresetVGA640x480)
	if !ok || format != v4l2.PixelFmtYUYV {
		t.Fatalf("vga: %v %v", format, ok)
	}

	small := &capabilities{sizes: []frameSize{{format: v4l2.PixelFmtMJPEG, maxW: 640, maxH: 480}}}
	if small.supports(capture.PresetHD1920x1080) {
		t.Fatal("small camera supports 1080p")
	}
	if !small.supports(capture.PresetHigh) {
		t.Fatal("high preset unsupported")
	}
	var none *capabilities
	if none.supports(capture.PresetHigh) {
		t.Fatal("nil capabilities support a preset")
	}
}

func TestIsBusyErr(t *testing.T) {
	if !isBusyErr(errors.New("device or resource busy")) {
		t.Fatal("busy not detected")
	}
	if isBusyErr(errors.New("no such device")) || isBusyErr(nil) {
		t.Fatal("false positive")
	}
}

func TestFrameTemplate(t *testing.T) {
	f := frameTemplate(v4l2.PixFormat{PixelFormat: v4l2.PixelFmtMJPEG, Width: 1920, Height: 1080})
	if f.Format != frame.FormatMJPEG || f.Width != 1920 || f.Height != 1080 {
		t.Fatalf("got %+v", f)
	}
	if got := fourCC(0x56595559); got != "YUYV" {
		t.Fatalf("fourcc = %q", got)
	}
}

func TestForwardDropsWhenBehind(t *testing.T) {
	src := make(chan []byte)
	out := make(chan frame.Frame, 1)
	done := make(chan struct{})
	go forward(context.Background(), src, out, done, frame.Frame{Format: frame.FormatMJPEG})

	src <- []byte{1}
	src <- nil
	src <- []byte{2}
	src <- []byte{3}
	close(done)

	var got []frame.Frame
	for f := range out {
		got = append(got, f)
	}
	if len(got) != 1 || got[0].Data[0] != 1 {
		t.Fatalf("got %d frames", len(got))
	}
	if !got[0].Time.IsValid() || got[0].Format != frame.FormatMJPEG {
		t.Fatalf("frame = %+v", got[0])
	}
}

func TestForwardCopiesBuffers(t *testing.T) {
	src := make(chan []byte)
	out := make(chan frame.Frame, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go forward(ctx, src, out, nil, frame.Frame{})

	buf := []byte{7}
	src <- buf
	f := <-out
	buf[0] = 9
	if f.Data[0] != 7 {
		t.Fatal("frame shares the driver buffer")
	}
	cancel()
	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("unexpected frame")
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}
}

func TestSelector(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video0", "video1", "video2"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	nodes := map[string]nodeInfo{
		"video0": {card: "Rear Camera", capture: true},
		"video1": {card: "Rear Camera metadata"},
		"video2": {card: "USB Front Cam", capture: true},
	}
	s := NewSelector("", "")
	s.Pattern = filepath.Join(dir, "video*")
	s.probe = func(path string) (nodeInfo, error) {
		return nodes[filepath.Base(path)], nil
	}

	back := s.Device(types.PositionBack)
	if back == nil || back.ID() != filepath.Join(dir, "video0") {
		t.Fatalf("back = %v", back)
	}
	if s.Device(types.PositionBack) != back {
		t.Fatal("camera not reused")
	}
	front := s.Device(types.PositionFront)
	if front == nil || front.ID() != filepath.Join(dir, "video2") || front.Position() != types.PositionFront {
		t.Fatalf("front = %v", front)
	}
	if s.Device(types.PositionUnspecified) != nil {
		t.Fatal("unspecified position resolved")
	}
}

func TestSelectorMissing(t *testing.T) {
	s := NewSelector(filepath.Join(t.TempDir(), "video0"), "")
	s.Pattern = filepath.Join(t.TempDir(), "video*")
	if d := s.Device(types.PositionBack); d != nil {
		t.Fatalf("got %v for a missing node", d)
	}
	if d := s.Device(types.PositionFront); d != nil {
		t.Fatalf("got %v without front cameras", d)
	}
}

func TestCameraRequiresLock(t *testing.T) {
	c := New("/dev/null-camera", types.PositionBack)
	if err := c.SetFocusMode(capture.FocusModeContinuousAutoFocus); !errors.Is(err, capture.ErrNotLocked) {
		t.Fatalf("got %v", err)
	}
	if err := c.SetFocusPointOfInterest(types.Point{X: 0.5, Y: 0.5}); !errors.Is(err, capture.ErrNotLocked) {
		t.Fatalf("got %v", err)
	}

	_ = c.LockForConfiguration()
	defer c.UnlockForConfiguration()
	p := types.Point{X: 0.25, Y: 0.75}
	if err := c.SetExposurePointOfInterest(p); err != nil {
		t.Fatal(err)
	}
	if _, e := c.PointsOfInterest(); e != p {
		t.Fatalf("exposure point = %+v", e)
	}
}
