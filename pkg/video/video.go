package video

import (
	"errors"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/icza/mjpeg"
	"go.uber.org/zap"

	"qrprocess-pi/pkg/frame"
	"qrprocess-pi/pkg/utils"
)

const (
	DefaultFPS     = 15
	DefaultQuality = 80

	queueSize = 8
)

var ErrClosed = errors.New("recorder closed")

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Recorder writes preview frames to an MJPEG AVI file. It implements
// capture.FrameReceiver: frames are queued and written on a goroutine of its own, and
// dropped when the writer falls behind. The AVI is created with the size of the first
// frame; later frames of another size are skipped.
type Recorder struct {
	path    string
	fps     int
	quality int

	frames chan frame.Frame
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	aw      mjpeg.AviWriter
	width   int
	height  int
	cnt     int
	dropped int
	bytes   uint64
	err     error
}

func NewRecorder(path string, fps int) *Recorder {
	if fps <= 0 {
		fps = DefaultFPS
	}
	r := &Recorder{
		path:    path,
		fps:     fps,
		quality: DefaultQuality,
		frames:  make(chan frame.Frame, queueSize),
		done:    make(chan struct{}),
	}
	go r.loop()

	return r
}

func (r *Recorder) DisplayFrame(f frame.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.frames <- f:
	default:
		r.dropped++
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for f := range r.frames {
		if err := r.add(f); err != nil {
			logger.Warnf("video(%s): %s", r.path, err)
		}
	}
}

func (r *Recorder) add(f frame.Frame) error {
	data, err := f.EncodeJPEG(r.quality)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil
	}
	if r.aw == nil {
		aw, err := mjpeg.New(r.path, int32(f.Width), int32(f.Height), int32(r.fps))
		if err != nil {
			r.err = err
			return err
		}
		r.aw, r.width, r.height = aw, f.Width, f.Height
		logger.Infof("video(%s): recording %dx%d at %d fps", r.path, f.Width, f.Height, r.fps)
	}
	if f.Width != r.width || f.Height != r.height {
		r.dropped++
		return nil
	}
	if err = r.aw.AddFrame(data); err != nil {
		r.err = err
		return err
	}
	r.cnt++
	r.bytes += uint64(len(data))

	return nil
}

// Close stops recording and finalizes the file. Queued frames are written first.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.frames)
	r.mu.Unlock()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	logger.Infof("video(%s): %d frames, %s, %d dropped", r.path, r.cnt, humanize.Bytes(r.bytes), r.dropped)
	if r.aw == nil {
		return r.err
	}
	return errors.Join(r.err, r.aw.Close())
}

func (r *Recorder) GetCnt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cnt
}

func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
