package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds a single vision request.
const DefaultRequestTimeout = 180 * time.Second

// Transport sends a built request. Any HTTP status is a response; only
// failures to get one are errors, reported as *NetworkError with status 0.
type Transport interface {
	Do(ctx context.Context, req *HTTPRequest, timeout time.Duration) (*HTTPResponse, error)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	httpClient *http.Client
}

// NewHTTPTransport creates an HTTPTransport. Timeouts are applied per request.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{httpClient: &http.Client{}}
}

// Do executes req with the given timeout (0 means no extra deadline).
func (t *HTTPTransport) Do(ctx context.Context, req *HTTPRequest, timeout time.Duration) (*HTTPResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("llm transport: build request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Status: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{StatusCode: resp.StatusCode, Status: err.Error()}
	}
	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Body:       respBody,
	}, nil
}

// statusText strips the numeric prefix from resp.Status ("404 Not Found" → "Not Found").
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		return text
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

// ListModels sends the provider's listing request and returns the raw body.
func ListModels(ctx context.Context, p LLMProvider, t Transport, timeout time.Duration) (string, error) {
	lister, ok := p.(ModelLister)
	if !ok {
		return "", fmt.Errorf("llm list models: provider %q cannot list models", p.ModelInfo().Provider)
	}
	req, err := lister.ListModelsRequest()
	if err != nil {
		return "", err
	}
	resp, err := t.Do(ctx, req, timeout)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &NetworkError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       p.DescribeFailure(resp.StatusCode, string(resp.Body)),
		}
	}
	return string(resp.Body), nil
}
