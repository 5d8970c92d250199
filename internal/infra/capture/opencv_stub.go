//go:build !gocv

package capture

import "errors"

// ErrOpenCVUnavailable is returned when the binary was built without the gocv tag.
var ErrOpenCVUnavailable = errors.New("capture: built without OpenCV support (rebuild with -tags gocv)")

// OpenCVSource is unavailable in this build.
type OpenCVSource struct {
	Source
}

// NewOpenCVSource always fails without the gocv build tag.
func NewOpenCVSource() (*OpenCVSource, error) {
	return nil, ErrOpenCVUnavailable
}
