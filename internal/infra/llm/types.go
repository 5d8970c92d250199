// Package llm defines the vision-model provider abstraction.
// All types here are shared between the provider interface, the adapters and
// the HTTP transport.
package llm

// Query is one multimodal question: a prompt plus base64-encoded JPEG frames.
type Query struct {
	Question string
	Images   []string
}

// HTTPRequest is a fully built outbound call. Providers only build it;
// sending is the Transport's job.
type HTTPRequest struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// HTTPResponse is the raw reply from the endpoint, whatever its status.
type HTTPResponse struct {
	StatusCode int
	Status     string // reason phrase, e.g. "Not Found"
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID       string // e.g. "gemma3:4b", "gemini-2.5-flash"
	Provider string // e.g. "ollama-chat", "gemini"
	Version  string // API version segment, when the provider has one
}
