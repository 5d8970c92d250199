package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

type burstAskerStub struct {
	got   vision.BurstOptions
	reply string
	err   error
}

func (s *burstAskerStub) AskBurst(_ context.Context, opts vision.BurstOptions) (string, error) {
	s.got = opts
	return s.reply, s.err
}

type imageAskerStub struct {
	provider, question, path string
	reply                    string
	err                      error
}

func (s *imageAskerStub) AskImageFile(_ context.Context, provider, question, path string) (string, error) {
	s.provider, s.question, s.path = provider, question, path
	return s.reply, s.err
}

func TestAskHandler_Burst_OK(t *testing.T) {
	t.Parallel()

	burst := &burstAskerStub{reply: "two people"}
	h := NewAskHandler(burst, &imageAskerStub{}, nil)

	body, _ := json.Marshal(map[string]any{"question": "who?", "fps": 4, "duration_ms": 1500})
	rr := httptest.NewRecorder()
	h.Burst(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/burst", bytes.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp AskResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Reply != "two people" {
		t.Errorf("expected reply 'two people', got %q", resp.Reply)
	}
	if burst.got.FPS != 4 || burst.got.Duration != 1500*time.Millisecond {
		t.Errorf("unexpected burst options %+v", burst.got)
	}
}

func TestAskHandler_Burst_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{vision.ErrDeviceBusy, http.StatusConflict},
		{fmt.Errorf("stream start: %w", vision.ErrPermissionDenied), http.StatusForbidden},
		{vision.ErrEmptyCapture, http.StatusUnprocessableEntity},
		{vision.ErrDeviceStartFailed, http.StatusServiceUnavailable},
		{&llm.NetworkError{StatusCode: 500, Status: "Internal Server Error"}, http.StatusBadGateway},
		{&llm.ParseError{Err: errors.New("bad json")}, http.StatusBadGateway},
		{fmt.Errorf("%w: question text is empty", vision.ErrRequestPrecondition), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		h := NewAskHandler(&burstAskerStub{err: c.err}, &imageAskerStub{}, nil)
		rr := httptest.NewRecorder()
		h.Burst(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/burst", bytes.NewBufferString(`{"question":"q"}`)))
		if rr.Code != c.want {
			t.Errorf("error %v: expected %d, got %d", c.err, c.want, rr.Code)
		}
	}
}

func TestAskHandler_Burst_MissingQuestion(t *testing.T) {
	t.Parallel()

	burst := &burstAskerStub{}
	h := NewAskHandler(burst, &imageAskerStub{}, nil)
	rr := httptest.NewRecorder()
	h.Burst(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/burst", bytes.NewBufferString(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAskHandler_Image(t *testing.T) {
	t.Parallel()

	img := &imageAskerStub{reply: "a receipt"}
	h := NewAskHandler(&burstAskerStub{}, img, nil)

	rr := httptest.NewRecorder()
	h.Image(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/image",
		bytes.NewBufferString(`{"question":"total?","path":"/tmp/r.jpg","provider":"openai"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if img.provider != "openai" || img.question != "total?" || img.path != "/tmp/r.jpg" {
		t.Errorf("unexpected call %+v", img)
	}

	h = NewAskHandler(&burstAskerStub{}, &imageAskerStub{err: fmt.Errorf("%w: /nope", vision.ErrImageNotFound)}, nil)
	rr = httptest.NewRecorder()
	h.Image(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/image", bytes.NewBufferString(`{"question":"q","path":"/nope"}`)))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Image(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/image", bytes.NewBufferString(`{"question":"q"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without path, got %d", rr.Code)
	}
}

func TestAskHandler_Burst_RejectsUnboundedInput(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"question":"q","fps":100000,"duration_ms":3600000}`,
		`{"question":"q","duration_ms":3600000}`,
		`{"question":"q","fps":-2}`,
		`{"question":"q","width":50000}`,
	} {
		burst := &burstAskerStub{reply: "unused"}
		h := NewAskHandler(burst, &imageAskerStub{}, nil)
		rr := httptest.NewRecorder()
		h.Burst(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/burst", bytes.NewBufferString(body)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rr.Code)
		}
		if burst.got.Question != "" {
			t.Errorf("%s: expected burst not to run", body)
		}
	}
}

func TestAskHandler_UnknownProvider(t *testing.T) {
	t.Parallel()

	providers := routerStub{providers: map[string]llm.LLMProvider{
		"": llm.NewOllamaProvider("http://ollama.test", "gemma3:4b", llm.OllamaChat),
	}}
	burst := &burstAskerStub{}
	img := &imageAskerStub{}
	h := NewAskHandler(burst, img, providers)

	rr := httptest.NewRecorder()
	h.Burst(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/burst", bytes.NewBufferString(`{"question":"q","provider":"nope"}`)))
	if rr.Code != http.StatusBadRequest || burst.got.Question != "" {
		t.Errorf("expected 400 before capture, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Image(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ask/image", bytes.NewBufferString(`{"question":"q","path":"/a.jpg","provider":"nope"}`)))
	if rr.Code != http.StatusBadRequest || img.path != "" {
		t.Errorf("expected 400 before reading the image, got %d", rr.Code)
	}
}
