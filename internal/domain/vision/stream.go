package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/infra/capture"
)

// Stream defaults applied to zero or out-of-range options.
const (
	DefaultFPS         = 5
	DefaultBatchSize   = 1
	DefaultMaxInFlight = 2
	DefaultWidth       = 640
	DefaultHeight      = 480

	// Upper bounds; larger options are clamped.
	MaxFPS         = 60
	MaxBatchSize   = 32
	MaxInFlight    = 16
	MaxFrameEdge   = 4096

	// minUsableWidth: devices report a 16px placeholder until they deliver real frames.
	minUsableWidth = 16

	defaultWarmupTimeout = 2 * time.Second
	defaultWarmupPoll    = 20 * time.Millisecond
)

// State is the StreamController lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateWarming
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWarming:
		return "warming"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// StreamOptions configures a continuous session.
type StreamOptions struct {
	Question    string
	FPS         int
	Device      string // empty selects by facing preference
	Width       int
	Height      int
	MaxInFlight int
	BatchSize   int
	Quality     int
	Provider    string

	OnReply func(reply string)
	OnError func(err error)
}

func (o StreamOptions) withDefaults() StreamOptions {
	o.FPS = clampOr(o.FPS, DefaultFPS, MaxFPS)
	o.BatchSize = clampOr(o.BatchSize, DefaultBatchSize, MaxBatchSize)
	o.MaxInFlight = clampOr(o.MaxInFlight, DefaultMaxInFlight, MaxInFlight)
	o.Width = clampOr(o.Width, DefaultWidth, MaxFrameEdge)
	o.Height = clampOr(o.Height, DefaultHeight, MaxFrameEdge)
	o.Quality = ClampQuality(o.Quality)
	return o
}

// clampOr returns fallback for v <= 0 and limit for v > limit.
func clampOr(v, fallback, limit int) int {
	if v <= 0 {
		return fallback
	}
	return min(v, limit)
}

// OrientationMeta is fixed for the life of a session.
type OrientationMeta struct {
	VerticallyMirrored bool
	RotationAngle      int // always one of 0, 90, 180, 270
	FrontFacing        bool
}

// NewOrientationMeta normalizes the angle to a right angle; anything else becomes 0.
func NewOrientationMeta(verticallyMirrored bool, rotationAngle int, frontFacing bool) OrientationMeta {
	angle := NormalizeAngle(rotationAngle)
	if angle%90 != 0 {
		angle = 0
	}
	return OrientationMeta{VerticallyMirrored: verticallyMirrored, RotationAngle: angle, FrontFacing: frontFacing}
}

// StreamStats is a point-in-time view of the controller.
type StreamStats struct {
	State               string `json:"state"`
	SessionID           string `json:"session_id,omitempty"`
	Device              string `json:"device,omitempty"`
	FrontFacing         bool   `json:"front_facing"`
	PreferFront         bool   `json:"prefer_front"`
	Ticks               uint64 `json:"ticks"`
	SkippedBackpressure uint64 `json:"skipped_backpressure"`
	MissingFrames       uint64 `json:"missing_frames"`
	EncodeDrops         uint64 `json:"encode_drops"`
	FramesEncoded       uint64 `json:"frames_encoded"`
	BatchesDispatched   uint64 `json:"batches_dispatched"`
	InFlight            int    `json:"in_flight"`
}

type sessionCounters struct {
	ticks, backpressure, missing, encodeDrops, encoded, batches atomic.Uint64
}

type session struct {
	id         string
	generation uint64
	opts       StreamOptions
	// parent is the context StartContinuous was given; dispatches run
	// under it so stopping the session does not cancel them.
	parent context.Context
	cancel context.CancelFunc
	done       chan struct{}
	counters   sessionCounters

	mu     sync.Mutex
	device capture.Device
}

// StreamController runs at most one continuous capture session at a time.
type StreamController struct {
	source     capture.Source
	dispatcher *Dispatcher
	encoder    Encoder
	logger     *zap.Logger

	warmupTimeout time.Duration
	warmupPoll    time.Duration
	after         func(time.Duration) <-chan time.Time

	// opMu serializes Start/Stop/Toggle/AskBurst.
	opMu sync.Mutex

	// mu guards the fields below; writers also hold opMu.
	mu         sync.Mutex
	current    *session
	last       *session
	lastOpts   StreamOptions
	lastParent context.Context
	hasLast    bool

	preferFront atomic.Bool
	generation  atomic.Uint64
	state       atomic.Int32
}

// ControllerOption configures a StreamController.
type ControllerOption func(*StreamController)

// WithEncoder replaces the default JPEGEncoder.
func WithEncoder(e Encoder) ControllerOption {
	return func(c *StreamController) { c.encoder = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *StreamController) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFrontFacing sets the initial facing preference (default true).
func WithFrontFacing(front bool) ControllerOption {
	return func(c *StreamController) { c.preferFront.Store(front) }
}

// WithWarmup overrides the warmup deadline and poll interval.
func WithWarmup(timeout, poll time.Duration) ControllerOption {
	return func(c *StreamController) {
		if timeout > 0 {
			c.warmupTimeout = timeout
		}
		if poll > 0 {
			c.warmupPoll = poll
		}
	}
}

// WithClock replaces time.After for pacing and warmup polling.
func WithClock(after func(time.Duration) <-chan time.Time) ControllerOption {
	return func(c *StreamController) {
		if after != nil {
			c.after = after
		}
	}
}

// NewStreamController creates a StreamController.
func NewStreamController(source capture.Source, dispatcher *Dispatcher, opts ...ControllerOption) *StreamController {
	c := &StreamController{
		source:        source,
		dispatcher:    dispatcher,
		encoder:       JPEGEncoder{},
		logger:        zap.NewNop(),
		warmupTimeout: defaultWarmupTimeout,
		warmupPoll:    defaultWarmupPoll,
		after:         time.After,
	}
	c.preferFront.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *StreamController) State() State {
	return State(c.state.Load())
}

// Active reports whether a continuous session is running.
func (c *StreamController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// StartContinuous stops any running session and starts a new one. The
// session lives until StopContinuous, a session error, or parent
// cancellation. Errors are reported through opts.OnError.
func (c *StreamController) StartContinuous(parent context.Context, opts StreamOptions) string {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	opts = opts.withDefaults()
	c.remember(opts, parent)
	c.stopLocked()
	return c.launch(parent, opts)
}

// StopContinuous cancels the running session and waits for its loop to
// exit and release the device. Dispatches already in flight complete, but
// their replies are no longer delivered.
func (c *StreamController) StopContinuous() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stopLocked()
}

// ToggleDevice flips the facing preference and restarts the last session
// with the same options and no explicit device. It returns the new session
// id, or "" when nothing was ever started.
func (c *StreamController) ToggleDevice() string {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.preferFront.Store(!c.preferFront.Load())
	c.stopLocked()
	if !c.hasLast {
		return ""
	}
	opts := c.lastOpts
	opts.Device = ""
	c.remember(opts, c.lastParent)
	return c.launch(c.lastParent, opts)
}

// LastOptions returns the options of the most recent start or toggle, with
// defaults applied. ok is false when nothing was ever started.
func (c *StreamController) LastOptions() (opts StreamOptions, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOpts, c.hasLast
}

// remember is called with opMu held.
func (c *StreamController) remember(opts StreamOptions, parent context.Context) {
	c.mu.Lock()
	c.lastOpts, c.lastParent, c.hasLast = opts, parent, true
	c.mu.Unlock()
}

// Stats returns counters for the running (or most recent) session.
func (c *StreamController) Stats() StreamStats {
	stats := StreamStats{
		State:       c.State().String(),
		PreferFront: c.preferFront.Load(),
		InFlight:    c.dispatcher.InFlight(),
	}

	c.mu.Lock()
	s, active := c.current, c.current != nil
	if s == nil {
		s = c.last
	}
	c.mu.Unlock()
	if s == nil {
		return stats
	}

	if active {
		stats.SessionID = s.id
	}
	s.mu.Lock()
	stats.Device = s.device.Name
	stats.FrontFacing = s.device.FrontFacing
	s.mu.Unlock()
	stats.Ticks = s.counters.ticks.Load()
	stats.SkippedBackpressure = s.counters.backpressure.Load()
	stats.MissingFrames = s.counters.missing.Load()
	stats.EncodeDrops = s.counters.encodeDrops.Load()
	stats.FramesEncoded = s.counters.encoded.Load()
	stats.BatchesDispatched = s.counters.batches.Load()
	return stats
}

func (c *StreamController) stopLocked() {
	c.generation.Add(1)

	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (c *StreamController) launch(parent context.Context, opts StreamOptions) string {
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		id:         uuid.NewString(),
		generation: c.generation.Add(1),
		opts:       opts,
		parent:     parent,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	c.current = s
	c.last = s
	c.state.Store(int32(StateStarting))
	c.mu.Unlock()

	go c.run(ctx, s)
	return s.id
}

// isCurrent reports whether completions for s may still reach the caller.
func (c *StreamController) isCurrent(s *session) bool {
	return c.generation.Load() == s.generation
}

func (c *StreamController) run(ctx context.Context, s *session) {
	err := c.runSession(ctx, s)
	s.cancel()

	c.mu.Lock()
	if c.current == s {
		c.current = nil
		c.state.Store(int32(StateIdle))
	}
	c.mu.Unlock()
	close(s.done)

	if err == nil || errors.Is(err, context.Canceled) {
		c.logger.Info("stream stopped", zap.String("session_id", s.id))
		return
	}
	c.logger.Warn("stream failed", zap.String("session_id", s.id), zap.Error(err))
	if s.opts.OnError != nil && c.isCurrent(s) {
		s.opts.OnError(err)
	}
}

func (c *StreamController) runSession(ctx context.Context, s *session) error {
	handle, device, err := c.openDevice(ctx, s.opts.Device, s.opts.Width, s.opts.Height, s.opts.FPS)
	if err != nil {
		return err
	}
	defer c.closeDevice(handle)

	s.mu.Lock()
	s.device = device
	s.mu.Unlock()

	c.state.Store(int32(StateWarming))
	first, err := c.warmUp(ctx, handle)
	if err != nil {
		return err
	}
	meta := NewOrientationMeta(first.VerticallyMirrored, first.RotationAngle, device.FrontFacing)

	c.state.Store(int32(StateStreaming))
	c.logger.Info("stream started",
		zap.String("session_id", s.id),
		zap.String("device", device.Name),
		zap.Int("width", first.Width),
		zap.Int("height", first.Height),
		zap.Int("rotation", meta.RotationAngle),
		zap.Bool("vertically_mirrored", meta.VerticallyMirrored),
		zap.Bool("front_facing", meta.FrontFacing),
		zap.Int("fps", s.opts.FPS),
		zap.Int("batch_size", s.opts.BatchSize),
	)
	return c.sample(ctx, s, handle, meta)
}

// sample is the streaming loop; it returns when ctx is cancelled.
func (c *StreamController) sample(ctx context.Context, s *session, handle capture.Handle, meta OrientationMeta) error {
	interval := time.Second / time.Duration(s.opts.FPS)
	batch := NewBatch(s.opts.BatchSize)

	for {
		if err := c.sleep(ctx, interval); err != nil {
			return err
		}
		s.counters.ticks.Add(1)

		if c.dispatcher.InFlight() >= s.opts.MaxInFlight {
			s.counters.backpressure.Add(1)
			continue
		}

		img, ok := c.captureOne(handle, meta, s.opts.Quality, &s.counters)
		if !ok {
			continue
		}
		if !batch.Add(img) {
			continue
		}
		c.dispatchBatch(s.parent, s, batch.Take())
	}
}

// captureOne reads, corrects and encodes the latest frame.
func (c *StreamController) captureOne(handle capture.Handle, meta OrientationMeta, quality int, counters *sessionCounters) (EncodedImage, bool) {
	frame, ok := c.source.LatestFrame(handle)
	if !ok || frame.Width <= 0 || frame.Height <= 0 || len(frame.Pixels) != frame.Width*frame.Height {
		counters.missing.Add(1)
		return "", false
	}

	pixels, w, h := Transform(frame.Pixels, frame.Width, frame.Height, meta.VerticallyMirrored, meta.RotationAngle, meta.FrontFacing)
	img, ok := c.encoder.Encode(pixels, w, h, quality)
	if !ok {
		counters.encodeDrops.Add(1)
		return "", false
	}
	counters.encoded.Add(1)
	return img, true
}

func (c *StreamController) dispatchBatch(ctx context.Context, s *session, images []EncodedImage) {
	s.counters.batches.Add(1)
	req := DispatchRequest{
		SessionID: s.id,
		Question:  s.opts.Question,
		Images:    images,
		Provider:  s.opts.Provider,
	}
	c.dispatcher.DispatchAsync(ctx, req,
		func(reply string) {
			if !c.isCurrent(s) {
				c.logger.Debug("dropping reply from stopped session", zap.String("session_id", s.id))
				return
			}
			if s.opts.OnReply != nil {
				s.opts.OnReply(reply)
			}
		},
		func(err error) {
			if !c.isCurrent(s) {
				c.logger.Debug("dropping error from stopped session", zap.String("session_id", s.id), zap.Error(err))
				return
			}
			c.logger.Warn("batch dispatch failed", zap.String("session_id", s.id), zap.Error(err))
			if s.opts.OnError != nil {
				s.opts.OnError(err)
			}
		},
	)
}

// openDevice authorizes, selects and opens a device.
func (c *StreamController) openDevice(ctx context.Context, requested string, width, height, fps int) (capture.Handle, capture.Device, error) {
	if auth, ok := c.source.(capture.Authorizer); ok {
		granted, err := auth.Authorize(ctx)
		if err != nil {
			return 0, capture.Device{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		if !granted {
			return 0, capture.Device{}, ErrPermissionDenied
		}
	}

	devices, err := c.source.ListDevices(ctx)
	if err != nil {
		return 0, capture.Device{}, fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return 0, capture.Device{}, ErrNoDeviceFound
	}

	device := selectDevice(devices, requested, c.preferFront.Load())
	handle, err := c.source.Open(ctx, device.Name, width, height, fps)
	if err != nil {
		return 0, capture.Device{}, fmt.Errorf("%w: %v", ErrDeviceStartFailed, err)
	}
	return handle, device, nil
}

func (c *StreamController) closeDevice(handle capture.Handle) {
	if err := c.source.Close(handle); err != nil {
		c.logger.Warn("close capture device", zap.Error(err))
	}
}

// selectDevice picks the named device, else the first matching the facing
// preference, else the first device. An unknown name is passed through to
// the source as-is.
func selectDevice(devices []capture.Device, requested string, preferFront bool) capture.Device {
	if requested != "" {
		for _, d := range devices {
			if d.Name == requested {
				return d
			}
		}
		return capture.Device{Name: requested}
	}
	for _, d := range devices {
		if d.FrontFacing == preferFront {
			return d
		}
	}
	return devices[0]
}

// warmUp polls until the device reports a usable frame.
func (c *StreamController) warmUp(ctx context.Context, handle capture.Handle) (capture.Frame, error) {
	deadline := time.Now().Add(c.warmupTimeout)
	for {
		if frame, ok := c.source.LatestFrame(handle); ok && frame.Width > minUsableWidth {
			return frame, nil
		}
		if !time.Now().Before(deadline) {
			return capture.Frame{}, ErrDeviceStartFailed
		}
		if err := c.sleep(ctx, c.warmupPoll); err != nil {
			return capture.Frame{}, err
		}
	}
}

func (c *StreamController) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.after(d):
		return nil
	}
}
