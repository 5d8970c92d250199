package vision

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

const chatOK = `{"message":{"role":"assistant","content":"ok"},"done":true}`

// fakeTransport records requests and replies with a fixed response.
// When block is non-nil every call waits on it or on ctx.
type fakeTransport struct {
	mu        sync.Mutex
	reqs      []*llm.HTTPRequest
	active    int
	maxActive int

	block chan struct{}
	resp  *llm.HTTPResponse
	err   error
}

func newFakeTransport(body string) *fakeTransport {
	return &fakeTransport{resp: &llm.HTTPResponse{StatusCode: 200, Status: "OK", Body: []byte(body)}}
}

func (f *fakeTransport) Do(ctx context.Context, req *llm.HTTPRequest, _ time.Duration) (*llm.HTTPResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			f.mu.Lock()
			f.active--
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return f.resp, f.err
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeTransport) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// imagesIn counts the images of the i-th recorded ollama chat request.
func (f *fakeTransport) imagesIn(t *testing.T, i int) int {
	t.Helper()
	f.mu.Lock()
	body := f.reqs[i].Body
	f.mu.Unlock()

	var payload struct {
		Messages []struct {
			Images []string `json:"images"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Messages) != 1 {
		t.Fatalf("request %d is not an ollama chat body: %s", i, body)
	}
	return len(payload.Messages[0].Images)
}

type memRecorder struct {
	mu   sync.Mutex
	recs []DispatchRecord
}

func (m *memRecorder) RecordDispatch(_ context.Context, rec DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) first() DispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[0]
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func chatRouter() *llm.Router {
	return llm.NewRouter(map[string]llm.LLMProvider{
		"ollama-chat": llm.NewOllamaProvider("http://ollama.test", "gemma3:4b", llm.OllamaChat),
		"gemini":      llm.NewGeminiProvider("http://gemini.test", "v1beta", "gemini-2.5-flash", "k"),
	}, "ollama-chat")
}

// manualClock hands out one shared channel; every send is one tick.
type manualClock struct{ ch chan time.Time }

func newManualClock() *manualClock { return &manualClock{ch: make(chan time.Time)} }

func (m *manualClock) after(time.Duration) <-chan time.Time { return m.ch }

func (m *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("sampling loop did not consume the tick")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
