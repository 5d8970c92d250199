// Package capture abstracts live camera feeds. A Source lists devices, opens
// one at a requested resolution and exposes the most recent frame; sampling
// cadence belongs to the caller.
package capture

import (
	"context"
	"errors"
)

// Pixel is one RGB sample.
type Pixel struct {
	R, G, B uint8
}

// Frame is a snapshot of the device buffer. Pixels are row-major, top row
// first, len(Pixels) == Width*Height.
type Frame struct {
	Pixels             []Pixel
	Width              int
	Height             int
	VerticallyMirrored bool
	RotationAngle      int
}

// Device describes one capture device.
type Device struct {
	Name        string `json:"name"`
	FrontFacing bool   `json:"front_facing"`
}

// Handle identifies an opened device within its Source.
type Handle uint64

// ErrUnknownHandle is returned for handles that were never opened or are
// already closed.
var ErrUnknownHandle = errors.New("capture: unknown handle")

// Source is the platform capture facility.
type Source interface {
	ListDevices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, device string, width, height, fps int) (Handle, error)
	// LatestFrame returns false while the device has not produced a frame.
	LatestFrame(h Handle) (Frame, bool)
	Close(h Handle) error
}

// Authorizer is implemented by sources whose platform gates camera access.
type Authorizer interface {
	Authorize(ctx context.Context) (bool, error)
}
