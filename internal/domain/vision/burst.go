package vision

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBurstDuration is used when BurstOptions.Duration is not positive.
	DefaultBurstDuration = 2 * time.Second
	MaxBurstDuration     = time.Minute

	burstPrealloc = 64
)

// BurstOptions configures a one-shot burst ask.
type BurstOptions struct {
	Question string
	FPS      int
	Duration time.Duration
	Device   string
	Width    int
	Height   int
	Quality  int
	Provider string
}

func (o BurstOptions) withDefaults() BurstOptions {
	o.FPS = clampOr(o.FPS, DefaultFPS, MaxFPS)
	if o.Duration <= 0 {
		o.Duration = DefaultBurstDuration
	}
	o.Duration = min(o.Duration, MaxBurstDuration)
	o.Width = clampOr(o.Width, DefaultWidth, MaxFrameEdge)
	o.Height = clampOr(o.Height, DefaultHeight, MaxFrameEdge)
	o.Quality = ClampQuality(o.Quality)
	return o
}

// BurstFrameCount is max(1, round(duration*fps)).
func BurstFrameCount(duration time.Duration, fps int) int {
	return max(1, int(math.Round(duration.Seconds()*float64(fps))))
}

// AskBurst captures BurstFrameCount frames at 1/fps, then sends them all in
// one blocking dispatch. It refuses to run while a continuous session holds
// the camera.
func (c *StreamController) AskBurst(ctx context.Context, opts BurstOptions) (string, error) {
	opts = opts.withDefaults()

	images, err := c.captureBurst(ctx, opts)
	if err != nil {
		return "", err
	}
	return c.dispatcher.Dispatch(ctx, DispatchRequest{
		Question: opts.Question,
		Images:   images,
		Provider: opts.Provider,
	})
}

func (c *StreamController) captureBurst(ctx context.Context, opts BurstOptions) ([]EncodedImage, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Active() {
		return nil, ErrDeviceBusy
	}

	handle, device, err := c.openDevice(ctx, opts.Device, opts.Width, opts.Height, opts.FPS)
	if err != nil {
		return nil, err
	}
	defer c.closeDevice(handle)

	first, err := c.warmUp(ctx, handle)
	if err != nil {
		return nil, err
	}
	meta := NewOrientationMeta(first.VerticallyMirrored, first.RotationAngle, device.FrontFacing)

	target := BurstFrameCount(opts.Duration, opts.FPS)
	interval := time.Second / time.Duration(opts.FPS)
	var counters sessionCounters
	images := make([]EncodedImage, 0, min(target, burstPrealloc))
	for i := 0; i < target; i++ {
		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}
		if img, ok := c.captureOne(handle, meta, opts.Quality, &counters); ok {
			images = append(images, img)
		}
	}

	c.logger.Info("burst captured",
		zap.String("device", device.Name),
		zap.Int("frames", len(images)),
		zap.Int("target", target),
	)
	if len(images) == 0 {
		return nil, ErrEmptyCapture
	}
	return images, nil
}
