package llm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestOpenAIProvider_BuildRequest_MultiContent(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider("http://oai.local/v1/", "gpt-4o-mini", "sk-test")
	req, err := p.BuildRequest(Query{Question: "describe", Images: []string{"QQ=="}})
	if err != nil {
		t.Fatalf("BuildRequest failed: %v", err)
	}
	if req.URL != "http://oai.local/v1/chat/completions" {
		t.Errorf("unexpected URL %s", req.URL)
	}
	if req.Header["Authorization"] != "Bearer sk-test" {
		t.Errorf("expected bearer header, got %q", req.Header["Authorization"])
	}

	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL *struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body.Model != "gpt-4o-mini" || len(body.Messages) != 1 {
		t.Fatalf("unexpected body: %s", req.Body)
	}
	parts := body.Messages[0].Content
	if len(parts) != 2 || parts[0].Type != "text" || parts[0].Text != "describe" {
		t.Fatalf("unexpected parts: %s", req.Body)
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/jpeg;base64,QQ==" {
		t.Errorf("unexpected image part: %s", req.Body)
	}
}

func TestOpenAIProvider_BuildRequest_NoKey_NoAuthHeader(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider("http://local/v1", "llava", "")
	req, err := p.BuildRequest(Query{Question: "q", Images: []string{"QQ=="}})
	if err != nil {
		t.Fatalf("BuildRequest failed: %v", err)
	}
	if _, ok := req.Header["Authorization"]; ok {
		t.Error("expected no Authorization header without a key")
	}
}

func TestOpenAIProvider_DefaultBaseURL(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider("", "gpt-4o-mini", "k")
	req, _ := p.BuildRequest(Query{Question: "q", Images: []string{"QQ=="}})
	if !strings.HasPrefix(req.URL, "https://api.openai.com/v1/") {
		t.Errorf("expected default base URL, got %s", req.URL)
	}
}

func TestOpenAIProvider_BuildRequest_Preconditions(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider("", "m", "k")
	if _, err := p.BuildRequest(Query{Images: []string{"QQ=="}}); !errors.Is(err, ErrRequestPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestOpenAIProvider_ParseResponse(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider("", "m", "k")
	got, err := p.ParseResponse([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"a lamp"}}]}`))
	if err != nil || got != "a lamp" {
		t.Errorf("expected (a lamp, nil), got (%q, %v)", got, err)
	}

	raw := `{"choices":[]}`
	if got, err := p.ParseResponse([]byte(raw)); err != nil || got != raw {
		t.Errorf("expected raw body, got (%q, %v)", got, err)
	}

	var perr *ParseError
	if _, err := p.ParseResponse([]byte("{")); !errors.As(err, &perr) {
		t.Errorf("expected *ParseError, got %v", err)
	}
}
