package camera

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/types"
)

// input streams frames of a Camera into a capture session.
//
// Start opens the device at the preset resolution and returns a channel of frames stamped
// with the time elapsed since the stream started. The channel is closed by Stop or when
// ctx is cancelled. A slow consumer loses frames rather than stalling the driver.
type input struct {
	cam *Camera

	mu   sync.Mutex
	done chan struct{}
}

func (in *input) Device() capture.Device {
	return in.cam
}

func (in *input) Start(ctx context.Context, preset capture.Preset) (<-chan frame.Frame, error) {
	c := in.cam
	c.lock.Lock()
	defer c.lock.Unlock()

	caps, err := c.probe()
	if err != nil {
		return nil, err
	}
	format, width, height, ok := caps.streamFormat(preset)
	if !ok {
		return nil, fmt.Errorf("%s: preset %s: %w", c.devName, preset, capture.ErrUnsupported)
	}

	src, pix, err := in.startWithRetry(ctx, format, width, height)
	if err != nil {
		return nil, err
	}

	out := make(chan frame.Frame, 1)
	done := make(chan struct{})
	in.mu.Lock()
	in.done = done
	in.mu.Unlock()

	go forward(ctx, src, out, done, frameTemplate(pix))

	return out, nil
}

func (in *input) Stop() error {
	in.mu.Lock()
	done := in.done
	in.done = nil
	in.mu.Unlock()
	if done != nil {
		close(done)
	}

	in.cam.lock.Lock()
	defer in.cam.lock.Unlock()
	return in.cam.stop()
}

// startWithRetry retries opening while the driver still reports the device busy from a
// previous stream.
func (in *input) startWithRetry(ctx context.Context, format v4l2.FourCCType, width, height int) (<-chan []byte, v4l2.PixFormat, error) {
	var (
		src <-chan []byte
		pix v4l2.PixFormat
		err error
	)
	for i := 0; i < 5; i++ {
		src, pix, err = in.cam.start(ctx, format, width, height)
		if err == nil {
			return src, pix, nil
		}
		if !isBusyErr(err) {
			break
		}
		logger.Warnf("failed to start %s will retry %d/5: %v", in.cam.devName, i+1, err)
		select {
		case <-ctx.Done():
			return nil, pix, ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}
	return nil, pix, err
}

func frameTemplate(pix v4l2.PixFormat) frame.Frame {
	format, ok := frameFormats[pix.PixelFormat]
	if !ok {
		format = frame.PixelFormat(fourCC(uint32(pix.PixelFormat)))
	}
	return frame.Frame{
		Format: format,
		Width:  int(pix.Width),
		Height: int(pix.Height),
	}
}

func fourCC(v uint32) string {
	return string([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// forward copies driver buffers to out until ctx or done ends the stream.
func forward(ctx context.Context, src <-chan []byte, out chan<- frame.Frame, done <-chan struct{}, tmpl frame.Frame) {
	defer close(out)
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case data, ok := <-src:
			if !ok {
				return
			}
			if len(data) == 0 {
				continue
			}
			f := tmpl
			f.Data = append([]byte(nil), data...)
			f.Time = types.NewTime(time.Since(start))
			// non-blocking: drop the frame when the consumer is behind
			select {
			case out <- f:
			default:
			}
		}
	}
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}
