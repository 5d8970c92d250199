// Package llm: OpenAI-compatible chat completions adapter.
// Endpoints used:
//   - POST {base}/chat/completions : multimodal chat (image_url data URIs)
//   - GET  {base}/models           : model listing
package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider speaks the chat completions wire shape. It reuses the
// go-openai DTOs for serialization but sends through our own Transport.
type OpenAIProvider struct {
	baseURL string
	model   string
	apiKey  string
}

// NewOpenAIProvider creates an OpenAIProvider. An empty baseURL uses the
// go-openai default ("https://api.openai.com/v1").
func NewOpenAIProvider(baseURL, model, apiKey string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = openai.DefaultConfig(apiKey).BaseURL
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
	}
}

// BuildRequest sends one user message: a text part then one image_url part
// per frame.
func (p *OpenAIProvider) BuildRequest(q Query) (*HTTPRequest, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	parts := make([]openai.ChatMessagePart, 0, len(q.Images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: q.Question,
	})
	for _, b64 := range q.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + b64,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai build request: %w", err)
	}

	return &HTTPRequest{
		Method: http.MethodPost,
		URL:    p.baseURL + "/chat/completions",
		Header: p.headers(jsonHeaders()),
		Body:   body,
	}, nil
}

func (p *OpenAIProvider) headers(h map[string]string) map[string]string {
	if p.apiKey != "" {
		h["Authorization"] = "Bearer " + p.apiKey
	}
	return h
}

// ParseResponse reads choices[0].message.content.
func (p *OpenAIProvider) ParseResponse(body []byte) (string, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ParseError{Err: err, Raw: string(body)}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return string(body), nil
	}
	return resp.Choices[0].Message.Content, nil
}

// DescribeFailure returns the body unchanged.
func (p *OpenAIProvider) DescribeFailure(_ int, body string) string {
	return body
}

// ModelInfo returns static metadata for this provider/model.
func (p *OpenAIProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: "openai"}
}

// ListModelsRequest builds GET {base}/models.
func (p *OpenAIProvider) ListModelsRequest() (*HTTPRequest, error) {
	return &HTTPRequest{
		Method: http.MethodGet,
		URL:    p.baseURL + "/models",
		Header: p.headers(map[string]string{headerAccept: mimeJSON}),
	}, nil
}
