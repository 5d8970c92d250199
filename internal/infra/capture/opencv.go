//go:build gocv

package capture

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// maxProbe bounds device index probing in ListDevices.
	maxProbe       = 4
	readRetryDelay = 10 * time.Millisecond
)

// OpenCVSource reads V4L2/AVFoundation/DirectShow devices through OpenCV.
// Devices are addressed by index ("0", "1", ...); index 0 is reported as
// front-facing, matching the usual laptop webcam.
type OpenCVSource struct {
	mu     sync.Mutex
	next   Handle
	opened map[Handle]*opencvStream
}

type opencvStream struct {
	webcam *gocv.VideoCapture
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	latest Frame
	ready  bool
}

// NewOpenCVSource creates an OpenCVSource.
func NewOpenCVSource() (*OpenCVSource, error) {
	return &OpenCVSource{opened: make(map[Handle]*opencvStream)}, nil
}

// ListDevices probes the first few device indices.
func (s *OpenCVSource) ListDevices(_ context.Context) ([]Device, error) {
	var devices []Device
	for i := 0; i < maxProbe; i++ {
		webcam, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if webcam.IsOpened() {
			devices = append(devices, Device{Name: strconv.Itoa(i), FrontFacing: i == 0})
		}
		webcam.Close() //nolint:errcheck
	}
	return devices, nil
}

// Open starts a reader goroutine that keeps the latest frame.
func (s *OpenCVSource) Open(ctx context.Context, device string, width, height, fps int) (Handle, error) {
	idx, err := strconv.Atoi(device)
	if err != nil {
		return 0, fmt.Errorf("opencv open %q: device must be an index: %w", device, err)
	}
	webcam, err := gocv.OpenVideoCapture(idx)
	if err != nil {
		return 0, fmt.Errorf("opencv open %d: %w", idx, err)
	}
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := &opencvStream{webcam: webcam, cancel: cancel, done: make(chan struct{})}
	go st.readLoop(readCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.opened[s.next] = st
	return s.next, nil
}

func (st *opencvStream) readLoop(ctx context.Context) {
	defer close(st.done)
	img := gocv.NewMat()
	defer img.Close() //nolint:errcheck

	for ctx.Err() == nil {
		if ok := st.webcam.Read(&img); !ok || img.Empty() {
			time.Sleep(readRetryDelay)
			continue
		}
		frame := matToFrame(img)
		st.mu.Lock()
		st.latest = frame
		st.ready = true
		st.mu.Unlock()
	}
}

// matToFrame converts an 8-bit BGR Mat into RGB pixels.
func matToFrame(img gocv.Mat) Frame {
	w, h := img.Cols(), img.Rows()
	data := img.ToBytes()
	ch := img.Channels()
	px := make([]Pixel, w*h)
	for i := range px {
		o := i * ch
		if o+2 >= len(data) {
			break
		}
		px[i] = Pixel{R: data[o+2], G: data[o+1], B: data[o]}
	}
	return Frame{Pixels: px, Width: w, Height: h}
}

// LatestFrame returns the most recent frame read from the device.
func (s *OpenCVSource) LatestFrame(h Handle) (Frame, bool) {
	s.mu.Lock()
	st, ok := s.opened[h]
	s.mu.Unlock()
	if !ok {
		return Frame{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.latest, st.ready
}

// Close stops the reader and releases the device.
func (s *OpenCVSource) Close(h Handle) error {
	s.mu.Lock()
	st, ok := s.opened[h]
	delete(s.opened, h)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	st.cancel()
	<-st.done
	return st.webcam.Close()
}
