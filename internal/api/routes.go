// Package api wires the control API routes onto a chi router.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/camvision/internal/api/middleware"
	"github.com/matiasleandrokruk/camvision/internal/domain/history"
	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/capture"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
	"github.com/matiasleandrokruk/camvision/internal/infra/sqlite"
	"github.com/matiasleandrokruk/camvision/internal/infra/sysstats"
	"github.com/matiasleandrokruk/camvision/internal/version"
)

// Deps are the services behind the routes.
type Deps struct {
	// Base outlives individual requests; continuous sessions run under it.
	Base       context.Context
	Controller *vision.StreamController
	Dispatcher *vision.Dispatcher
	Source     capture.Source
	History    *history.Service
	DB         *sql.DB // backs History; reported by /health
	Providers  *llm.Router
	Transport  llm.Transport
	Bus        eventbus.EventBus
	Stream     config.StreamConfig
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewRouter creates and configures a new chi router with all routes.
func NewRouter(d Deps) *chi.Mux {
	if d.Base == nil {
		d.Base = context.Background()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.AccessLog(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":  "ok",
			"state":   d.Controller.State().String(),
			"version": version.Get(),
		}
		status := http.StatusOK
		if d.DB != nil {
			schema, err := sqlite.Status(r.Context(), d.DB)
			if err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				body["schema"] = schema
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})

	var providers handlers.ProviderRouter
	if d.Providers != nil {
		providers = d.Providers
	}
	var sessions handlers.SessionRecorder
	if d.History != nil {
		sessions = d.History
	}
	streamHandler := handlers.NewStreamHandler(d.Base, d.Controller, d.Bus, providers, d.Stream, sessions, sysstats.Take, d.Logger)
	feedHandler := handlers.NewFeedHandler(d.Bus, d.Logger)
	askHandler := handlers.NewAskHandler(d.Controller, d.Dispatcher, providers)
	deviceHandler := handlers.NewDeviceHandler(d.Source)
	modelsHandler := handlers.NewModelsHandler(d.Providers, d.Transport, d.Timeout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stream", func(r chi.Router) {
			r.Post("/start", streamHandler.Start)       // POST /api/v1/stream/start
			r.Post("/stop", streamHandler.Stop)         // POST /api/v1/stream/stop
			r.Post("/toggle", streamHandler.Toggle)     // POST /api/v1/stream/toggle
			r.Get("/status", streamHandler.Status)      // GET /api/v1/stream/status
			r.Get("/replies", feedHandler.Replies)      // GET /api/v1/stream/replies (SSE)
			r.Get("/replies/ws", feedHandler.RepliesWS) // GET /api/v1/stream/replies/ws
		})

		r.Route("/ask", func(r chi.Router) {
			r.Post("/burst", askHandler.Burst) // POST /api/v1/ask/burst
			r.Post("/image", askHandler.Image) // POST /api/v1/ask/image
		})

		r.Get("/devices", deviceHandler.ListDevices) // GET /api/v1/devices
		r.Get("/models", modelsHandler.ListModels)   // GET /api/v1/models

		if d.History != nil {
			historyHandler := handlers.NewHistoryHandler(d.History)
			r.Get("/history", historyHandler.ListHistory)      // GET /api/v1/history
			r.Get("/history/{id}", historyHandler.GetEntry)    // GET /api/v1/history/{id}
			r.Get("/sessions/{id}", historyHandler.GetSession) // GET /api/v1/sessions/{id}
		}
	})

	return r
}
