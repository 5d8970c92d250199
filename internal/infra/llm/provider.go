// Package llm: provider interface.
// Adapters (Ollama chat/generate, Gemini, OpenAI-compatible) implement this
// interface so the dispatch pipeline is never coupled to a vendor wire shape.
package llm

// LLMProvider turns a Query into an HTTP request and a response body back
// into reply text. Implementations are pure: they never touch the network.
type LLMProvider interface {
	// BuildRequest validates the query and serializes it for the endpoint.
	// Precondition failures wrap ErrRequestPrecondition.
	BuildRequest(q Query) (*HTTPRequest, error)

	// ParseResponse extracts the reply text from a 2xx body. Invalid JSON
	// yields *ParseError; valid JSON without the expected fields yields the
	// raw body.
	ParseResponse(body []byte) (string, error)

	// DescribeFailure returns the body to report for a non-2xx status.
	DescribeFailure(statusCode int, body string) string

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta
}

// ModelLister is implemented by providers that can enumerate remote models.
type ModelLister interface {
	ListModelsRequest() (*HTTPRequest, error)
}

func jsonHeaders() map[string]string {
	return map[string]string{
		headerContentType: mimeJSON,
		headerAccept:      mimeJSON,
	}
}
