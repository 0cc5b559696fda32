package camera

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vladimirvivien/go4vl/device"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/types"
)

const DefaultPattern = "/dev/video*"

type nodeInfo struct {
	card    string
	capture bool
}

// Selector resolves a camera position to a V4L2 device. Explicit paths win; otherwise
// nodes matching Pattern are scanned and a card name containing "front" marks a
// front-facing camera.
type Selector struct {
	BackPath  string
	FrontPath string
	Pattern   string
	// FPS is applied to cameras created by the selector when positive.
	FPS int

	probe func(path string) (nodeInfo, error)

	mu      sync.Mutex
	cameras map[string]*Camera
}

func NewSelector(back, front string) *Selector {
	return &Selector{
		BackPath:  back,
		FrontPath: front,
		Pattern:   DefaultPattern,
		probe:     probeNode,
		cameras:   make(map[string]*Camera),
	}
}

func probeNode(path string) (nodeInfo, error) {
	dev, err := device.Open(path, device.WithBufferSize(1))
	if err != nil {
		return nodeInfo{}, err
	}
	defer dev.Close()
	c := dev.Capability()
	return nodeInfo{card: c.Card, capture: c.IsVideoCaptureSupported()}, nil
}

// Device returns the camera at position, or nil when none is available.
func (s *Selector) Device(position types.CameraPosition) capture.Device {
	var path string
	switch position {
	case types.PositionBack:
		path = s.BackPath
	case types.PositionFront:
		path = s.FrontPath
	default:
		return nil
	}
	if path == "" {
		path = s.discover(position)
	}
	if path == "" {
		logger.Warnf("selector: no %s camera found", position)
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		logger.Warnf("selector: %s camera %s: %s", position, path, err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cameras == nil {
		s.cameras = make(map[string]*Camera)
	}
	cam, ok := s.cameras[path]
	if !ok {
		cam = New(path, position)
		if s.FPS > 0 {
			cam.SetFPS(s.FPS)
		}
		s.cameras[path] = cam
	}

	return cam
}

func (s *Selector) discover(position types.CameraPosition) string {
	pattern := s.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		logger.Warnf("selector: glob %s: %s", pattern, err)
		return ""
	}
	sort.Strings(paths)

	probe := s.probe
	if probe == nil {
		probe = probeNode
	}
	for _, p := range paths {
		info, err := probe(p)
		if err != nil {
			logger.Debugf("selector: skip %s: %s", p, err)
			continue
		}
		if !info.capture {
			continue
		}
		front := strings.Contains(strings.ToLower(info.card), "front")
		if front == (position == types.PositionFront) {
			logger.Infof("selector: using %s (%s) as %s camera", p, info.card, position)
			return p
		}
	}

	return ""
}
