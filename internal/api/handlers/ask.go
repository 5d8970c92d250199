package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
)

// BurstAsker is satisfied by vision.StreamController.
type BurstAsker interface {
	AskBurst(ctx context.Context, opts vision.BurstOptions) (string, error)
}

// ImageAsker is satisfied by vision.Dispatcher.
type ImageAsker interface {
	AskImageFile(ctx context.Context, provider, question, path string) (string, error)
}

// AskHandler serves one-shot questions.
type AskHandler struct {
	burst     BurstAsker
	image     ImageAsker
	providers ProviderRouter
}

// NewAskHandler creates an AskHandler; providers may be nil.
func NewAskHandler(burst BurstAsker, image ImageAsker, providers ProviderRouter) *AskHandler {
	return &AskHandler{burst: burst, image: image, providers: providers}
}

// BurstRequest is the request body for a burst ask.
type BurstRequest struct {
	Question   string `json:"question"`
	FPS        int    `json:"fps"`
	DurationMS int    `json:"duration_ms"`
	Device     string `json:"device"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Quality    int    `json:"quality"`
	Provider   string `json:"provider"`
}

// ImageRequest is the request body for a single image ask.
type ImageRequest struct {
	Question string `json:"question"`
	Path     string `json:"path"`
	Provider string `json:"provider"`
}

// AskResponse carries the model reply.
type AskResponse struct {
	Reply string `json:"reply"`
}

// Burst handles POST /api/v1/ask/burst
func (h *AskHandler) Burst(w http.ResponseWriter, r *http.Request) {
	var req BurstRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if msg := outOfRange(
		bound{"fps", req.FPS, vision.MaxFPS},
		bound{"duration_ms", req.DurationMS, int(vision.MaxBurstDuration.Milliseconds())},
		bound{"width", req.Width, vision.MaxFrameEdge},
		bound{"height", req.Height, vision.MaxFrameEdge},
		bound{"quality", req.Quality, 100},
	); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := checkProvider(h.providers, req.Provider); err != nil {
		writeDomainError(w, err)
		return
	}

	reply, err := h.burst.AskBurst(r.Context(), vision.BurstOptions{
		Question: req.Question,
		FPS:      req.FPS,
		Duration: time.Duration(req.DurationMS) * time.Millisecond,
		Device:   req.Device,
		Width:    req.Width,
		Height:   req.Height,
		Quality:  req.Quality,
		Provider: req.Provider,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Reply: reply})
}

// Image handles POST /api/v1/ask/image
func (h *AskHandler) Image(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "question and path are required")
		return
	}
	if err := checkProvider(h.providers, req.Provider); err != nil {
		writeDomainError(w, err)
		return
	}

	reply, err := h.image.AskImageFile(r.Context(), req.Provider, req.Question, req.Path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Reply: reply})
}
