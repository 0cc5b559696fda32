package scanner

import (
	"qrprocess-pi/pkg/capture"
)

// sink receives detection batches on the decode queue and forwards every readable code
// that maps into the preview layer. Repeated codes are reported again on every frame.
type sink struct {
	scanner *Scanner
}

func (k *sink) OnDetections(objects []capture.Object, _ *capture.Connection) {
	s := k.scanner
	d := s.delegate.get()
	if d == nil || len(objects) == 0 {
		return
	}
	s.mu.RLock()
	layer := s.layer
	s.mu.RUnlock()
	if layer == nil {
		return
	}

	for _, obj := range objects {
		secs := obj.Time.Seconds()
		mapped, ok := layer.TransformedMetadataObject(obj)
		if !ok {
			s.logger.Debugf("scanner: %s object outside the preview, skipped", obj.Type)
			continue
		}
		code, ok := mapped.StringValue()
		if !ok {
			continue
		}
		s.logger.Debugf("scanner: %s %q at %ds", mapped.Type, code, secs)
		d.DidCaptureCode(s, code, secs)
		d.DidCaptureCodeType(s, code, mapped.Type)
	}
}
