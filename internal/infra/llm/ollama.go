// Package llm: Ollama HTTP adapter.
// Endpoints used:
//   - POST /api/chat     : non-streaming multimodal chat
//   - POST /api/generate : non-streaming multimodal generate
//   - GET  /api/tags     : model listing
package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
)

// OllamaEndpoint selects which Ollama API shape the provider speaks.
type OllamaEndpoint string

const (
	OllamaChat     OllamaEndpoint = "chat"
	OllamaGenerate OllamaEndpoint = "generate"
)

// OllamaProvider implements LLMProvider against a running Ollama instance.
type OllamaProvider struct {
	baseURL  string
	model    string
	endpoint OllamaEndpoint
}

// NewOllamaProvider creates an OllamaProvider. An unknown endpoint falls back
// to chat.
func NewOllamaProvider(baseURL, model string, endpoint OllamaEndpoint) *OllamaProvider {
	if endpoint != OllamaGenerate {
		endpoint = OllamaChat
	}
	return &OllamaProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		endpoint: endpoint,
	}
}

// ─── internal Ollama JSON types ──────────────────────────────────────────────

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message *ollamaChatMessage `json:"message"`
	Done    bool               `json:"done"`
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ─── LLMProvider implementation ─────────────────────────────────────────────

// BuildRequest serializes the query for /api/chat or /api/generate.
func (p *OllamaProvider) BuildRequest(q Query) (*HTTPRequest, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	var payload any
	if p.endpoint == OllamaGenerate {
		payload = ollamaGenerateRequest{
			Model:  p.model,
			Prompt: q.Question,
			Images: q.Images,
			Stream: false,
		}
	} else {
		payload = ollamaChatRequest{
			Model: p.model,
			Messages: []ollamaChatMessage{
				{Role: "user", Content: q.Question, Images: q.Images},
			},
			Stream: false,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama build %s: %w", p.endpoint, err)
	}
	return &HTTPRequest{
		Method: http.MethodPost,
		URL:    p.baseURL + "/api/" + string(p.endpoint),
		Header: jsonHeaders(),
		Body:   body,
	}, nil
}

// ParseResponse reads message.content (chat) or response (generate).
func (p *OllamaProvider) ParseResponse(body []byte) (string, error) {
	if p.endpoint == OllamaGenerate {
		var resp ollamaGenerateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &ParseError{Err: err, Raw: string(body)}
		}
		if resp.Response == "" {
			return string(body), nil
		}
		return resp.Response, nil
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ParseError{Err: err, Raw: string(body)}
	}
	if resp.Message == nil {
		return string(body), nil
	}
	return resp.Message.Content, nil
}

// DescribeFailure returns the body unchanged.
func (p *OllamaProvider) DescribeFailure(_ int, body string) string {
	return body
}

// ModelInfo returns static metadata for this provider/model.
func (p *OllamaProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:       p.model,
		Provider: "ollama-" + string(p.endpoint),
	}
}

// ListModelsRequest builds GET /api/tags.
func (p *OllamaProvider) ListModelsRequest() (*HTTPRequest, error) {
	return &HTTPRequest{
		Method: http.MethodGet,
		URL:    p.baseURL + "/api/tags",
		Header: map[string]string{headerAccept: mimeJSON},
	}, nil
}
