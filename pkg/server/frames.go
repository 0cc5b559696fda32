package server

import (
	"qrprocess-pi/pkg/frame"
)

const previewQuality = 75

// FrameStream turns preview frames into JPEG images for the MJPEG endpoint. Frames are
// only encoded while someone watches.
type FrameStream struct {
	hub *Hub[[]byte]
}

func NewFrameStream() *FrameStream {
	return &FrameStream{hub: NewHub[[]byte]()}
}

func (s *FrameStream) DisplayFrame(f frame.Frame) {
	if s.hub.Len() == 0 {
		return
	}
	data, err := f.EncodeJPEG(previewQuality)
	if err != nil {
		logger.Debugf("frames: %s", err)
		return
	}
	s.hub.Publish(data)
}

func (s *FrameStream) Subscribe() (id string, ch <-chan []byte, cancel func()) {
	return s.hub.Subscribe(2)
}
