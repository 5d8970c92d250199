package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTransport_Do_Non2xxIsResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			http.Error(w, "missing accept", http.StatusBadRequest)
			return
		}
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport().Do(context.Background(), &HTTPRequest{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: jsonHeaders(),
		Body:   []byte(`{}`),
	}, time.Second)
	if err != nil {
		t.Fatalf("expected no error for 404, got %v", err)
	}
	if resp.StatusCode != http.StatusNotFound || resp.Status != "Not Found" {
		t.Errorf("expected 404 Not Found, got %d %q", resp.StatusCode, resp.Status)
	}
	if resp.OK() {
		t.Error("expected OK() false for 404")
	}
	if !strings.Contains(string(resp.Body), "no such model") {
		t.Errorf("expected body preserved, got %q", resp.Body)
	}
}

func TestHTTPTransport_Do_Unreachable_ReturnsNetworkErrorStatusZero(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport().Do(context.Background(), &HTTPRequest{Method: http.MethodPost, URL: url}, time.Second)

	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *NetworkError, got %T (%v)", err, err)
	}
	if nerr.StatusCode != 0 {
		t.Errorf("expected status 0, got %d", nerr.StatusCode)
	}
}

func TestHTTPTransport_Do_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPTransport().Do(context.Background(), &HTTPRequest{Method: http.MethodGet, URL: srv.URL}, 50*time.Millisecond)
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *NetworkError on timeout, got %v", err)
	}
}

func TestListModels_ReturnsRawBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models" || r.URL.Query().Get("key") != "k" {
			http.Error(w, "unexpected", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "v1beta", "gemini-2.5-flash", "k")
	body, err := ListModels(context.Background(), p, NewHTTPTransport(), time.Second)
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if !strings.Contains(body, "gemini-2.5-flash") {
		t.Errorf("unexpected body %q", body)
	}
}

func TestListModels_HTTPError_Wrapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "v1beta", "m", "k")
	_, err := ListModels(context.Background(), p, NewHTTPTransport(), time.Second)
	var nerr *NetworkError
	if !errors.As(err, &nerr) || nerr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 NetworkError, got %v", err)
	}
}

func TestListModels_ProviderWithoutLister(t *testing.T) {
	t.Parallel()

	if _, err := ListModels(context.Background(), &stubProvider{id: "x"}, NewHTTPTransport(), time.Second); err == nil {
		t.Error("expected error for provider without ModelLister")
	}
}

func TestNetworkError_Message(t *testing.T) {
	t.Parallel()

	err := &NetworkError{StatusCode: 500, Status: "Internal Server Error", Body: "boom"}
	if err.Error() != "HTTP error: 500 Internal Server Error\nboom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
