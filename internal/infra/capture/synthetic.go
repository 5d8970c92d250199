package capture

import (
	"context"
	"fmt"
	"sync"
)

// placeholderSize is the frame edge reported while a device warms up.
const placeholderSize = 16

// SyntheticOptions configures a SyntheticSource.
type SyntheticOptions struct {
	// Devices defaults to one front-facing and one rear-facing device.
	Devices []Device
	// RotationAngle and VerticallyMirrored are reported on every frame.
	RotationAngle      int
	VerticallyMirrored bool
	// WarmupFrames is how many reads return a 16x16 placeholder before the
	// requested resolution is produced.
	WarmupFrames int
	// Denied makes Authorize report false.
	Denied bool
}

// SyntheticSource produces a moving test pattern. It needs no camera and is
// the default backend for tests and headless hosts.
type SyntheticSource struct {
	mu     sync.Mutex
	opts   SyntheticOptions
	next   Handle
	opened map[Handle]*syntheticStream
}

type syntheticStream struct {
	device string
	width  int
	height int
	reads  int
}

// NewSyntheticSource creates a SyntheticSource.
func NewSyntheticSource(opts SyntheticOptions) *SyntheticSource {
	if len(opts.Devices) == 0 {
		opts.Devices = []Device{
			{Name: "synthetic-front", FrontFacing: true},
			{Name: "synthetic-back", FrontFacing: false},
		}
	}
	return &SyntheticSource{opts: opts, opened: make(map[Handle]*syntheticStream)}
}

// Authorize implements Authorizer.
func (s *SyntheticSource) Authorize(_ context.Context) (bool, error) {
	return !s.opts.Denied, nil
}

// ListDevices returns the configured devices.
func (s *SyntheticSource) ListDevices(_ context.Context) ([]Device, error) {
	out := make([]Device, len(s.opts.Devices))
	copy(out, s.opts.Devices)
	return out, nil
}

// Open starts a pattern stream for a known device.
func (s *SyntheticSource) Open(_ context.Context, device string, width, height, _ int) (Handle, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("synthetic open %s: invalid resolution %dx%d", device, width, height)
	}
	known := false
	for _, d := range s.opts.Devices {
		if d.Name == device {
			known = true
			break
		}
	}
	if !known {
		return 0, fmt.Errorf("synthetic open %s: no such device", device)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.opened[s.next] = &syntheticStream{device: device, width: width, height: height}
	return s.next, nil
}

// LatestFrame renders the next pattern frame.
func (s *SyntheticSource) LatestFrame(h Handle) (Frame, bool) {
	s.mu.Lock()
	st, ok := s.opened[h]
	if !ok {
		s.mu.Unlock()
		return Frame{}, false
	}
	st.reads++
	warming := st.reads <= s.opts.WarmupFrames
	seq := st.reads
	w, hgt := st.width, st.height
	s.mu.Unlock()

	if warming {
		w, hgt = placeholderSize, placeholderSize
	}
	return Frame{
		Pixels:             pattern(w, hgt, seq),
		Width:              w,
		Height:             hgt,
		VerticallyMirrored: s.opts.VerticallyMirrored,
		RotationAngle:      s.opts.RotationAngle,
	}, true
}

// Close releases the stream.
func (s *SyntheticSource) Close(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.opened[h]; !ok {
		return ErrUnknownHandle
	}
	delete(s.opened, h)
	return nil
}

// OpenCount reports how many handles are currently open.
func (s *SyntheticSource) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opened)
}

func pattern(w, h, seq int) []Pixel {
	px := make([]Pixel, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px[y*w+x] = Pixel{
				R: uint8((x*255/w + seq*4) % 256),
				G: uint8(y * 255 / h),
				B: uint8((seq * 16) % 256),
			}
		}
	}
	return px
}
