package handlers

import (
	"context"
	"net/http"

	"github.com/matiasleandrokruk/camvision/internal/infra/capture"
)

// DeviceLister is satisfied by every capture.Source.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]capture.Device, error)
}

// DeviceHandler lists capture devices.
type DeviceHandler struct {
	lister DeviceLister
}

func NewDeviceHandler(lister DeviceLister) *DeviceHandler {
	return &DeviceHandler{lister: lister}
}

// ListDevices handles GET /api/v1/devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.lister.ListDevices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []capture.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": devices})
}
