package vision

import (
	"errors"

	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

var (
	ErrPermissionDenied  = errors.New("webcam permission denied")
	ErrNoDeviceFound     = errors.New("no webcam devices found")
	ErrDeviceStartFailed = errors.New("webcam failed to start or resolution unavailable")
	ErrEmptyCapture      = errors.New("captured zero frames")
	ErrDeviceBusy        = errors.New("capture device busy: a continuous stream is running")
	ErrImageNotFound     = errors.New("image not found")

	// ErrRequestPrecondition is re-exported so callers need not import llm.
	ErrRequestPrecondition = llm.ErrRequestPrecondition
)
