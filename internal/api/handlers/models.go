package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

// ProviderRouter resolves providers by name; llm.Router satisfies it.
type ProviderRouter interface {
	Route(name string) (llm.LLMProvider, error)
}

// ModelsHandler proxies provider model listings.
type ModelsHandler struct {
	router    ProviderRouter
	transport llm.Transport
	timeout   time.Duration
}

func NewModelsHandler(router ProviderRouter, transport llm.Transport, timeout time.Duration) *ModelsHandler {
	return &ModelsHandler{router: router, transport: transport, timeout: timeout}
}

// ListModels handles GET /api/v1/models?provider=
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	provider, err := h.router.Route(r.URL.Query().Get("provider"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, ok := provider.(llm.ModelLister); !ok {
		writeError(w, http.StatusBadRequest, "provider does not support model listing")
		return
	}

	body, err := llm.ListModels(r.Context(), provider, h.transport, h.timeout)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	meta := provider.ModelInfo()
	resp := map[string]any{"provider": meta.Provider}
	if json.Valid([]byte(body)) {
		resp["models"] = json.RawMessage(body)
	} else {
		resp["models"] = body
	}
	writeJSON(w, http.StatusOK, resp)
}
