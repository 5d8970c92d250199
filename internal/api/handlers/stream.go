package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/domain/history"
	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
	"github.com/matiasleandrokruk/camvision/internal/infra/sysstats"
)

// StreamService is the continuous-session surface of vision.StreamController.
type StreamService interface {
	StartContinuous(ctx context.Context, opts vision.StreamOptions) string
	StopContinuous()
	ToggleDevice() string
	LastOptions() (vision.StreamOptions, bool)
	Stats() vision.StreamStats
}

// SessionRecorder stores stream starts; history.Service satisfies it.
type SessionRecorder interface {
	RecordSession(ctx context.Context, sess history.Session) error
}

// HostProbe samples host load for the status response.
type HostProbe func(ctx context.Context) (sysstats.Snapshot, error)

// StreamHandler drives continuous capture sessions.
// Sessions outlive the request that started them, so they run under base.
type StreamHandler struct {
	svc       StreamService
	bus       eventbus.EventBus
	base      context.Context
	providers ProviderRouter
	defaults  config.StreamConfig
	sessions  SessionRecorder
	probe     HostProbe
	logger    *zap.Logger
}

// NewStreamHandler creates a StreamHandler. providers, sessions and probe may be nil.
func NewStreamHandler(
	base context.Context,
	svc StreamService,
	bus eventbus.EventBus,
	providers ProviderRouter,
	defaults config.StreamConfig,
	sessions SessionRecorder,
	probe HostProbe,
	logger *zap.Logger,
) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		svc:       svc,
		bus:       bus,
		base:      base,
		providers: providers,
		defaults:  defaults,
		sessions:  sessions,
		probe:     probe,
		logger:    logger,
	}
}

// StartStreamRequest is the request body for starting a session.
// Zero fields fall back to the configured stream defaults.
type StartStreamRequest struct {
	Question    string `json:"question"`
	FPS         int    `json:"fps"`
	Device      string `json:"device"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	MaxInFlight int    `json:"max_in_flight"`
	BatchSize   int    `json:"batch_size"`
	Quality     int    `json:"quality"`
	Provider    string `json:"provider"`
}

// StreamStatusResponse is the response body for stream operations.
type StreamStatusResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Stream    vision.StreamStats `json:"stream"`
	Host      *sysstats.Snapshot `json:"host,omitempty"`
}

// Start handles POST /api/v1/stream/start
func (h *StreamHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartStreamRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := outOfRange(
		bound{"fps", req.FPS, vision.MaxFPS},
		bound{"width", req.Width, vision.MaxFrameEdge},
		bound{"height", req.Height, vision.MaxFrameEdge},
		bound{"max_in_flight", req.MaxInFlight, vision.MaxInFlight},
		bound{"batch_size", req.BatchSize, vision.MaxBatchSize},
		bound{"quality", req.Quality, 100},
	); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	opts := h.buildOptions(req)
	if opts.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if err := checkProvider(h.providers, opts.Provider); err != nil {
		writeDomainError(w, err)
		return
	}

	id := h.svc.StartContinuous(h.base, vision.PublishTo(h.bus, opts))
	h.logger.Info("stream started",
		zap.String("session_id", id),
		zap.Int("fps", opts.FPS),
		zap.Int("batch_size", opts.BatchSize),
		zap.String("provider", opts.Provider))
	h.recordSession(r.Context(), id, opts)

	writeJSON(w, http.StatusAccepted, StreamStatusResponse{SessionID: id, Stream: h.svc.Stats()})
}

// recordSession stores a session start; failures are logged, not returned.
func (h *StreamHandler) recordSession(ctx context.Context, id string, opts vision.StreamOptions) {
	if h.sessions == nil || id == "" {
		return
	}
	err := h.sessions.RecordSession(ctx, history.Session{
		ID:        id,
		Question:  opts.Question,
		Provider:  opts.Provider,
		FPS:       coalesceInt(opts.FPS, vision.DefaultFPS),
		BatchSize: coalesceInt(opts.BatchSize, vision.DefaultBatchSize),
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("record session failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (h *StreamHandler) buildOptions(req StartStreamRequest) vision.StreamOptions {
	d := h.defaults
	return vision.StreamOptions{
		Question:    coalesce(req.Question, d.Question),
		FPS:         coalesceInt(req.FPS, d.FPS),
		Device:      coalesce(req.Device, d.Device),
		Width:       coalesceInt(req.Width, d.Width),
		Height:      coalesceInt(req.Height, d.Height),
		MaxInFlight: coalesceInt(req.MaxInFlight, d.MaxInFlight),
		BatchSize:   coalesceInt(req.BatchSize, d.BatchSize),
		Quality:     coalesceInt(req.Quality, d.Quality),
		Provider:    req.Provider,
	}
}

// Stop handles POST /api/v1/stream/stop
func (h *StreamHandler) Stop(w http.ResponseWriter, _ *http.Request) {
	h.svc.StopContinuous()
	h.logger.Info("stream stopped")
	writeJSON(w, http.StatusOK, StreamStatusResponse{Stream: h.svc.Stats()})
}

// Toggle handles POST /api/v1/stream/toggle
// With no prior start only the facing preference flips and session_id is empty.
func (h *StreamHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := h.svc.ToggleDevice()
	stats := h.svc.Stats()
	h.logger.Info("stream device toggled", zap.String("session_id", id), zap.Bool("prefer_front", stats.PreferFront))
	if opts, ok := h.svc.LastOptions(); ok {
		h.recordSession(r.Context(), id, opts)
	}
	writeJSON(w, http.StatusOK, StreamStatusResponse{SessionID: id, Stream: stats})
}

// Status handles GET /api/v1/stream/status
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Stats()
	resp := StreamStatusResponse{SessionID: stats.SessionID, Stream: stats}
	if h.probe != nil {
		snap, err := h.probe(r.Context())
		if err != nil {
			h.logger.Debug("host probe failed", zap.Error(err))
		}
		resp.Host = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}
