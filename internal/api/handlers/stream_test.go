package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/matiasleandrokruk/camvision/internal/domain/history"
	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
	"github.com/matiasleandrokruk/camvision/internal/infra/sysstats"
)

type streamServiceStub struct {
	mu       sync.Mutex
	started  []vision.StreamOptions
	ctx      context.Context
	stopped  int
	toggleID string
	lastOpts *vision.StreamOptions
	stats    vision.StreamStats
}

func (s *streamServiceStub) StartContinuous(ctx context.Context, opts vision.StreamOptions) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.started = append(s.started, opts)
	return "sess-1"
}

func (s *streamServiceStub) StopContinuous() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func (s *streamServiceStub) ToggleDevice() string { return s.toggleID }

func (s *streamServiceStub) LastOptions() (vision.StreamOptions, bool) {
	if s.lastOpts == nil {
		return vision.StreamOptions{}, false
	}
	return *s.lastOpts, true
}

func (s *streamServiceStub) Stats() vision.StreamStats { return s.stats }

type sessionRecorderStub struct {
	sessions []history.Session
	err      error
}

func (s *sessionRecorderStub) RecordSession(_ context.Context, sess history.Session) error {
	s.sessions = append(s.sessions, sess)
	return s.err
}

func streamDefaults() config.StreamConfig {
	return config.StreamConfig{Question: "default question", FPS: 5, Width: 640, Height: 480, MaxInFlight: 2, BatchSize: 1, Quality: 80}
}

type baseKey struct{}

func TestStreamHandler_Start_AppliesDefaultsAndRecords(t *testing.T) {
	t.Parallel()

	svc := &streamServiceStub{stats: vision.StreamStats{State: "starting"}}
	rec := &sessionRecorderStub{}
	base := context.WithValue(context.Background(), baseKey{}, "base")
	h := NewStreamHandler(base, svc, eventbus.New(), nil, streamDefaults(), rec, nil, nil)

	body, _ := json.Marshal(map[string]any{"fps": 2, "batch_size": 3, "provider": "gemini"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Start(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp StreamStatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Stream.State != "starting" {
		t.Errorf("unexpected response %+v", resp)
	}

	if len(svc.started) != 1 {
		t.Fatalf("expected one start, got %d", len(svc.started))
	}
	opts := svc.started[0]
	if opts.Question != "default question" || opts.FPS != 2 || opts.BatchSize != 3 || opts.Width != 640 || opts.Provider != "gemini" {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.OnReply == nil || opts.OnError == nil {
		t.Error("expected callbacks wired to the bus")
	}
	if svc.ctx.Value(baseKey{}) != "base" {
		t.Error("expected session to run under the base context, not the request context")
	}
	if len(rec.sessions) != 1 || rec.sessions[0].ID != "sess-1" || rec.sessions[0].BatchSize != 3 {
		t.Errorf("unexpected recorded sessions %+v", rec.sessions)
	}
}

func TestStreamHandler_Start_EmptyBodyUsesDefaults(t *testing.T) {
	t.Parallel()

	svc := &streamServiceStub{}
	h := NewStreamHandler(context.Background(), svc, eventbus.New(), nil, streamDefaults(), nil, nil, nil)

	rr := httptest.NewRecorder()
	h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if svc.started[0].Question != "default question" {
		t.Errorf("expected default question, got %q", svc.started[0].Question)
	}
}

func TestStreamHandler_Start_Validation(t *testing.T) {
	t.Parallel()

	t.Run("invalid body", func(t *testing.T) {
		h := NewStreamHandler(context.Background(), &streamServiceStub{}, eventbus.New(), nil, streamDefaults(), nil, nil, nil)
		rr := httptest.NewRecorder()
		h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewBufferString("{")))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("no question anywhere", func(t *testing.T) {
		svc := &streamServiceStub{}
		h := NewStreamHandler(context.Background(), svc, eventbus.New(), nil, config.StreamConfig{}, nil, nil, nil)
		rr := httptest.NewRecorder()
		h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewBufferString(`{}`)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if len(svc.started) != 0 {
			t.Error("expected no session started")
		}
	})
}

func TestStreamHandler_Start_RecorderErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	h := NewStreamHandler(context.Background(), &streamServiceStub{}, eventbus.New(), nil, streamDefaults(),
		&sessionRecorderStub{err: errors.New("disk full")}, nil, nil)
	rr := httptest.NewRecorder()
	h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
}

func TestStreamHandler_StopToggleStatus(t *testing.T) {
	t.Parallel()

	svc := &streamServiceStub{toggleID: "sess-2", stats: vision.StreamStats{State: "streaming", SessionID: "sess-2", PreferFront: true}}
	probe := func(context.Context) (sysstats.Snapshot, error) {
		return sysstats.Snapshot{CPUPercent: 12.5, Goroutines: 7}, nil
	}
	h := NewStreamHandler(context.Background(), svc, eventbus.New(), nil, streamDefaults(), nil, probe, nil)

	rr := httptest.NewRecorder()
	h.Stop(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/stop", nil))
	if rr.Code != http.StatusOK || svc.stopped != 1 {
		t.Fatalf("expected 200 and one stop, got %d / %d", rr.Code, svc.stopped)
	}

	rr = httptest.NewRecorder()
	h.Toggle(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/toggle", nil))
	var toggled StreamStatusResponse
	_ = json.NewDecoder(rr.Body).Decode(&toggled)
	if toggled.SessionID != "sess-2" || !toggled.Stream.PreferFront {
		t.Errorf("unexpected toggle response %+v", toggled)
	}

	rr = httptest.NewRecorder()
	h.Status(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stream/status", nil))
	var status StreamStatusResponse
	_ = json.NewDecoder(rr.Body).Decode(&status)
	if status.Stream.State != "streaming" || status.Host == nil || status.Host.Goroutines != 7 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestStreamHandler_Start_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"fps":100000}`,
		`{"batch_size":-1}`,
		`{"width":100000,"height":10}`,
		`{"max_in_flight":1000}`,
		`{"quality":101}`,
	} {
		svc := &streamServiceStub{}
		h := NewStreamHandler(context.Background(), svc, eventbus.New(), nil, streamDefaults(), nil, nil, nil)
		rr := httptest.NewRecorder()
		h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewBufferString(body)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rr.Code)
		}
		if len(svc.started) != 0 {
			t.Errorf("%s: expected no session started", body)
		}
	}
}

func TestStreamHandler_Start_UnknownProvider(t *testing.T) {
	t.Parallel()

	svc := &streamServiceStub{}
	providers := routerStub{providers: map[string]llm.LLMProvider{
		"":       llm.NewOllamaProvider("http://ollama.test", "gemma3:4b", llm.OllamaChat),
		"ollama": llm.NewOllamaProvider("http://ollama.test", "gemma3:4b", llm.OllamaChat),
	}}
	h := NewStreamHandler(context.Background(), svc, eventbus.New(), providers, streamDefaults(), nil, nil, nil)

	rr := httptest.NewRecorder()
	h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewBufferString(`{"provider":"olama"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(svc.started) != 0 {
		t.Error("expected no session started for an unknown provider")
	}

	rr = httptest.NewRecorder()
	h.Start(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/start", bytes.NewBufferString(`{"provider":"ollama"}`)))
	if rr.Code != http.StatusAccepted {
		t.Errorf("expected 202 for a registered provider, got %d", rr.Code)
	}
}

func TestStreamHandler_Toggle_RecordsNewSession(t *testing.T) {
	t.Parallel()

	last := vision.StreamOptions{Question: "what now?", FPS: 3, BatchSize: 2, Provider: "gemini"}
	svc := &streamServiceStub{toggleID: "sess-2", lastOpts: &last}
	rec := &sessionRecorderStub{}
	h := NewStreamHandler(context.Background(), svc, eventbus.New(), nil, streamDefaults(), rec, nil, nil)

	rr := httptest.NewRecorder()
	h.Toggle(rr, httptest.NewRequest(http.MethodPost, "/api/v1/stream/toggle", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(rec.sessions) != 1 {
		t.Fatalf("expected toggled session recorded, got %d", len(rec.sessions))
	}
	got := rec.sessions[0]
	if got.ID != "sess-2" || got.Question != "what now?" || got.FPS != 3 || got.BatchSize != 2 || got.Provider != "gemini" {
		t.Errorf("unexpected recorded session %+v", got)
	}

	// Nothing started yet: no session to record.
	rec = &sessionRecorderStub{}
	h = NewStreamHandler(context.Background(), &streamServiceStub{}, eventbus.New(), nil, streamDefaults(), rec, nil, nil)
	h.Toggle(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/stream/toggle", nil))
	if len(rec.sessions) != 0 {
		t.Errorf("expected nothing recorded without a prior start, got %+v", rec.sessions)
	}
}
