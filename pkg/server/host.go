package server

import (
	"sync"
	"time"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/scanner"
	"qrprocess-pi/pkg/types"
	"qrprocess-pi/pkg/view"
)

const (
	EventCode  = "code"
	EventError = "error"
	EventSetup = "setup"
	EventEnd   = "end"
)

// Event is what the event stream sends for every scanner notification.
type Event struct {
	Kind  string           `json:"kind"`
	Scan  *types.ScanEvent `json:"scan,omitempty"`
	Error string           `json:"error,omitempty"`
	At    time.Time        `json:"at"`
}

// Host is the scanner delegate of the headless service. It owns a virtual view tree: a
// root view holding the preview surface, with the focus view marking the rect of
// interest inside the preview.
type Host struct {
	autoStart bool

	root    *view.View
	preview *view.View
	focus   *view.View
	events  *Hub[Event]

	// written on the decode queue only
	lastTime int64

	mu        sync.RWMutex
	setup     bool
	scans     uint64
	last      *types.ScanEvent
	lastError string
}

// NewHost lays out a preview of size with the rect of interest focus, in preview
// coordinates. With autoStart the host starts scanning as soon as setup completes.
func NewHost(size types.Size, focus types.Rect, autoStart bool) *Host {
	h := &Host{
		autoStart: autoStart,
		root:      view.New("root", types.Rect{Width: size.Width, Height: size.Height}),
		preview:   view.New("preview", types.Rect{Width: size.Width, Height: size.Height}),
		focus:     view.New("focus", focus),
		events:    NewHub[Event](),
	}
	h.root.AddSubview(h.preview)
	h.preview.AddSubview(h.focus)
	h.preview.SetLayoutFunc(func(v *view.View) {
		for _, l := range v.Sublayers() {
			l.SetFrame(v.Bounds())
		}
	})

	return h
}

func (h *Host) Preview() *view.View {
	return h.preview
}

func (h *Host) Events() *Hub[Event] {
	return h.events
}

func (h *Host) VideoPreview() capture.Surface {
	return h.preview
}

func (h *Host) RectOfInterest() capture.View {
	return h.focus
}

func (h *Host) DidCaptureCode(_ *scanner.Scanner, code string, time int64) {
	h.lastTime = time
	logger.Debugf("host: code %q at %ds", code, time)
}

func (h *Host) DidCaptureCodeType(_ *scanner.Scanner, code string, codeType types.CodeType) {
	ev := &types.ScanEvent{Code: code, Type: codeType, Timestamp: h.lastTime}

	h.mu.Lock()
	h.scans++
	h.last = ev
	h.mu.Unlock()

	logger.Infof("host: scanned %s %q", codeType, code)
	h.events.Publish(Event{Kind: EventCode, Scan: ev, At: time.Now()})
}

func (h *Host) DidReceiveError(_ *scanner.Scanner, err *scanner.Error) {
	h.mu.Lock()
	h.lastError = err.Error()
	h.mu.Unlock()

	h.events.Publish(Event{Kind: EventError, Error: err.Error(), At: time.Now()})
}

func (h *Host) DidSetup(s *scanner.Scanner) {
	h.mu.Lock()
	h.setup = true
	h.mu.Unlock()

	h.events.Publish(Event{Kind: EventSetup, At: time.Now()})
	if h.autoStart {
		s.StartCapturing()
	}
}

func (h *Host) DidEndScanning(*scanner.Scanner) {
	h.events.Publish(Event{Kind: EventEnd, At: time.Now()})
}

// HostStatus is the host side of the status endpoint.
type HostStatus struct {
	Setup     bool             `json:"setup"`
	Scans     uint64           `json:"scans"`
	Last      *types.ScanEvent `json:"last,omitempty"`
	LastError string           `json:"lastError,omitempty"`
	Focus     types.Rect       `json:"focus"`
	Preview   types.Rect       `json:"preview"`
}

func (h *Host) Status() HostStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HostStatus{
		Setup:     h.setup,
		Scans:     h.scans,
		Last:      h.last,
		LastError: h.lastError,
		Focus:     h.focus.Frame(),
		Preview:   h.preview.Frame(),
	}
}
