// Package llm: Google AI Studio (Gemini) adapter.
// Endpoints used:
//   - POST /{version}/models/{model}:generateContent?key= : multimodal generate
//   - GET  /{version}/models?key=                          : model listing
package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultGeminiHost is the public Google AI Studio endpoint.
	DefaultGeminiHost = "https://generativelanguage.googleapis.com"

	geminiNotFoundHint = "Hint: Model not found for this API version. Try another model or list the available models."
)

// GeminiProvider implements LLMProvider for generateContent.
type GeminiProvider struct {
	host    string
	version string
	model   string
	apiKey  string
}

// NewGeminiProvider creates a GeminiProvider. An empty host uses DefaultGeminiHost
// and an empty version uses "v1beta".
func NewGeminiProvider(host, version, model, apiKey string) *GeminiProvider {
	if host == "" {
		host = DefaultGeminiHost
	}
	if version == "" {
		version = "v1beta"
	}
	return &GeminiProvider{
		host:    strings.TrimRight(host, "/"),
		version: version,
		model:   model,
		apiKey:  apiKey,
	}
}

// ─── internal Gemini JSON types (response side only) ────────────────────────

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

// ─── LLMProvider implementation ─────────────────────────────────────────────

// BuildRequest assembles the generateContent call. The body is written by
// hand: each image travels in its own user content holding one inlineData part.
func (p *GeminiProvider) BuildRequest(q Query) (*HTTPRequest, error) {
	if p.apiKey == "" {
		return nil, preconditionf("google API key is empty")
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		p.host, p.requestVersion(), p.model, url.QueryEscape(p.apiKey))

	return &HTTPRequest{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: jsonHeaders(),
		Body:   []byte(buildGeminiBody(q.Question, q.Images)),
	}, nil
}

// requestVersion upgrades v1 to v1beta for the 2.5 model family, which is
// only served on the beta surface.
func (p *GeminiProvider) requestVersion() string {
	if p.version == "v1" && strings.Contains(p.model, "2.5") {
		return "v1beta"
	}
	return p.version
}

func buildGeminiBody(question string, images []string) string {
	var sb strings.Builder
	sb.WriteString(`{"contents":[`)
	sb.WriteString(`{"role":"user","parts":[{"text":"`)
	sb.WriteString(escapeJSONString(question))
	sb.WriteString(`"}]}`)
	for _, b64 := range images {
		sb.WriteString(`,{"role":"user","parts":[{"inlineData":{`)
		sb.WriteString(`"mimeType":"image/jpeg",`)
		sb.WriteString(`"data":"`)
		sb.WriteString(escapeJSONString(b64))
		sb.WriteString(`"}}]}`)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// escapeJSONString escapes backslash, quote and control characters.
func escapeJSONString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, `\u%04x`, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ParseResponse joins the non-empty texts of candidates[0].content.parts.
func (p *GeminiProvider) ParseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ParseError{Err: err, Raw: string(body)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return string(body), nil
	}

	texts := make([]string, 0, len(resp.Candidates[0].Content.Parts))
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	if len(texts) == 0 {
		return string(body), nil
	}
	return strings.Join(texts, "\n"), nil
}

// DescribeFailure appends a model hint to 404 bodies.
func (p *GeminiProvider) DescribeFailure(statusCode int, body string) string {
	if statusCode == http.StatusNotFound {
		return body + "\n" + geminiNotFoundHint
	}
	return body
}

// ModelInfo returns static metadata for this provider/model.
func (p *GeminiProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:       p.model,
		Provider: "gemini",
		Version:  p.requestVersion(),
	}
}

// ListModelsRequest builds GET /{version}/models?key=.
func (p *GeminiProvider) ListModelsRequest() (*HTTPRequest, error) {
	if p.apiKey == "" {
		return nil, preconditionf("google API key is empty")
	}
	return &HTTPRequest{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s/models?key=%s", p.host, p.version, url.QueryEscape(p.apiKey)),
		Header: map[string]string{headerAccept: mimeJSON},
	}, nil
}
