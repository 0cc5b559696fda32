package scanner

import (
	"sync"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/types"
)

// Delegate is implemented by the embedding application. Notifications that concern the
// UI arrive on the scanner's UI queue; detections arrive on the decode queue and the
// delegate decides where to handle them.
type Delegate interface {
	// VideoPreview hosts the preview layer.
	VideoPreview() capture.Surface
	// RectOfInterest is the view outlining the scanning area. Codes outside it are skipped.
	RectOfInterest() capture.View

	DidCaptureCode(s *Scanner, code string, time int64)
	DidCaptureCodeType(s *Scanner, code string, codeType types.CodeType)
	DidReceiveError(s *Scanner, err *Error)
	DidSetup(s *Scanner)
	DidEndScanning(s *Scanner)
}

// Funcs adapts plain functions to Delegate. Nil fields are skipped.
type Funcs struct {
	Preview       capture.Surface
	Interest      capture.View
	OnCode        func(s *Scanner, code string, time int64)
	OnCodeType    func(s *Scanner, code string, codeType types.CodeType)
	OnError       func(s *Scanner, err *Error)
	OnSetup       func(s *Scanner)
	OnEndScanning func(s *Scanner)
}

func (f *Funcs) VideoPreview() capture.Surface { return f.Preview }
func (f *Funcs) RectOfInterest() capture.View  { return f.Interest }

func (f *Funcs) DidCaptureCode(s *Scanner, code string, time int64) {
	if f.OnCode != nil {
		f.OnCode(s, code, time)
	}
}

func (f *Funcs) DidCaptureCodeType(s *Scanner, code string, codeType types.CodeType) {
	if f.OnCodeType != nil {
		f.OnCodeType(s, code, codeType)
	}
}

func (f *Funcs) DidReceiveError(s *Scanner, err *Error) {
	if f.OnError != nil {
		f.OnError(s, err)
	}
}

func (f *Funcs) DidSetup(s *Scanner) {
	if f.OnSetup != nil {
		f.OnSetup(s)
	}
}

func (f *Funcs) DidEndScanning(s *Scanner) {
	if f.OnEndScanning != nil {
		f.OnEndScanning(s)
	}
}

// delegateRef is a non-owning slot: once cleared, calls through it do nothing.
type delegateRef struct {
	mu sync.RWMutex
	d  Delegate
}

func (r *delegateRef) get() Delegate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d
}

func (r *delegateRef) set(d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d = d
}
