package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

func TestDispatcher_Dispatch_ReturnsParsedReply(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(chatOK)
	d := NewDispatcher(chatRouter(), tr)

	reply, err := d.Dispatch(context.Background(), DispatchRequest{Question: "hi", Images: []EncodedImage{"QQ=="}})
	if err != nil || reply != "ok" {
		t.Fatalf("expected (ok, nil), got (%q, %v)", reply, err)
	}
	if tr.calls() != 1 {
		t.Errorf("expected 1 transport call, got %d", tr.calls())
	}
}

func TestDispatcher_Dispatch_EmptyReply_NoContent(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "  ", `{"message":{"role":"assistant","content":""}}`} {
		d := NewDispatcher(chatRouter(), newFakeTransport(body))
		reply, err := d.Dispatch(context.Background(), DispatchRequest{Question: "hi", Images: []EncodedImage{"QQ=="}})
		if err != nil || reply != NoContentReply {
			t.Errorf("body %q: expected (%s, nil), got (%q, %v)", body, NoContentReply, reply, err)
		}
	}
}

func TestDispatcher_Dispatch_Non2xx_NetworkErrorWithHint(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{resp: &llm.HTTPResponse{StatusCode: 404, Status: "Not Found", Body: []byte(`{"error":"model"}`)}}
	d := NewDispatcher(chatRouter(), tr)

	_, err := d.Dispatch(context.Background(), DispatchRequest{Question: "hi", Images: []EncodedImage{"QQ=="}, Provider: "gemini"})
	var nerr *llm.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *llm.NetworkError, got %v", err)
	}
	if nerr.StatusCode != 404 || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "Hint") {
		t.Errorf("expected 404 with hint, got %q", err.Error())
	}
	if !IsRequestError(err) {
		t.Error("expected IsRequestError true")
	}
}

func TestDispatcher_Dispatch_InvalidJSON_ParseError(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(chatRouter(), newFakeTransport("<html>"))
	_, err := d.Dispatch(context.Background(), DispatchRequest{Question: "hi", Images: []EncodedImage{"QQ=="}})

	var perr *llm.ParseError
	if !errors.As(err, &perr) || perr.Raw != "<html>" {
		t.Fatalf("expected ParseError with raw body, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Parse error: ") || !strings.Contains(err.Error(), "Raw: <html>") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestDispatcher_Dispatch_Precondition_NoNetworkCall(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(chatOK)
	d := NewDispatcher(chatRouter(), tr)

	_, err := d.Dispatch(context.Background(), DispatchRequest{Question: "", Images: []EncodedImage{"QQ=="}})
	if !errors.Is(err, ErrRequestPrecondition) {
		t.Fatalf("expected ErrRequestPrecondition, got %v", err)
	}
	if IsRequestError(err) {
		t.Error("precondition must not count as request error")
	}
	if tr.calls() != 0 {
		t.Errorf("expected no transport call, got %d", tr.calls())
	}
}

func TestDispatcher_Dispatch_UnknownProvider(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(chatRouter(), newFakeTransport(chatOK))
	if _, err := d.Dispatch(context.Background(), DispatchRequest{Question: "q", Images: []EncodedImage{"QQ=="}, Provider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDispatcher_Dispatch_RecordsOutcome(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	tr := newFakeTransport(chatOK)
	d := NewDispatcher(chatRouter(), tr, WithRecorder(rec))

	_, _ = d.Dispatch(context.Background(), DispatchRequest{SessionID: "s1", Question: "q", Images: []EncodedImage{"QQ==", "Qg=="}})
	tr.err = &llm.NetworkError{Status: "connection refused"}
	_, _ = d.Dispatch(context.Background(), DispatchRequest{Question: "q", Images: []EncodedImage{"QQ=="}})

	if rec.count() != 2 {
		t.Fatalf("expected 2 records, got %d", rec.count())
	}
	ok, failed := rec.recs[0], rec.recs[1]
	if ok.Status != DispatchOK || ok.Reply != "ok" || ok.Frames != 2 || ok.SessionID != "s1" || ok.Model != "gemma3:4b" {
		t.Errorf("unexpected ok record: %+v", ok)
	}
	if failed.Status != DispatchError || !strings.Contains(failed.Error, "connection refused") {
		t.Errorf("unexpected error record: %+v", failed)
	}
	if ok.ID == "" || ok.ID == failed.ID {
		t.Errorf("expected distinct record ids, got %q and %q", ok.ID, failed.ID)
	}
}

func TestDispatcher_DispatchAsync_InFlightAccounting(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(chatOK)
	tr.block = make(chan struct{})
	d := NewDispatcher(chatRouter(), tr)

	got := make(chan string, 1)
	d.DispatchAsync(context.Background(), DispatchRequest{Question: "q", Images: []EncodedImage{"QQ=="}},
		func(reply string) {
			if d.InFlight() != 1 {
				t.Errorf("expected in-flight 1 inside callback, got %d", d.InFlight())
			}
			got <- reply
		},
		func(err error) { t.Errorf("unexpected error: %v", err) },
	)

	if d.InFlight() != 1 {
		t.Fatalf("expected in-flight 1 right after DispatchAsync, got %d", d.InFlight())
	}
	close(tr.block)

	if reply := <-got; reply != "ok" {
		t.Errorf("expected ok, got %q", reply)
	}
	waitFor(t, "in-flight to drop to 0", func() bool { return d.InFlight() == 0 })
}

func TestDispatcher_DispatchAsync_ErrorCallback(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport("")
	tr.err = &llm.NetworkError{Status: "dial tcp: refused"}
	d := NewDispatcher(chatRouter(), tr)

	errs := make(chan error, 1)
	d.DispatchAsync(context.Background(), DispatchRequest{Question: "q", Images: []EncodedImage{"QQ=="}},
		func(string) { t.Error("unexpected success") },
		func(err error) { errs <- err },
	)

	var nerr *llm.NetworkError
	if err := <-errs; !errors.As(err, &nerr) || nerr.StatusCode != 0 {
		t.Errorf("expected status-0 NetworkError, got %v", err)
	}
}

func TestDispatcher_AskImageFile(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(chatOK)
	d := NewDispatcher(chatRouter(), tr)

	path := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(path, []byte("A"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	reply, err := d.AskImageFile(context.Background(), "", "what?", path)
	if err != nil || reply != "ok" {
		t.Fatalf("expected (ok, nil), got (%q, %v)", reply, err)
	}
	if !strings.Contains(string(tr.reqs[0].Body), `"images":["QQ=="]`) {
		t.Errorf("expected base64 of file content in body, got %s", tr.reqs[0].Body)
	}

	if _, err := d.AskImageFile(context.Background(), "", "what?", filepath.Join(t.TempDir(), "missing.jpg")); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound, got %v", err)
	}
}
