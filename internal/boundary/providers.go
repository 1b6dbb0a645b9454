package boundary

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consultd/internal/config"
	daemonerrors "consultd/internal/errors"
	"consultd/internal/provider"
)

// providerTestModel is the cheapest real model on each provider, used to
// validate credentials with a minimal round trip rather than a bare
// ping endpoint neither upstream exposes.
var providerTestModel = map[string]string{
	"deepseek": "deepseek-chat",
	"openai":   "gpt-5.2",
}

func providerConfig(providers config.Providers, id string) (config.ProviderConfig, bool) {
	switch id {
	case "deepseek":
		return providers.DeepSeek, true
	case "openai":
		return providers.OpenAI, true
	default:
		return config.ProviderConfig{}, false
	}
}

func (h *handlers) handleListProviders(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Config.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	masked := config.Snapshot(cfg).Providers
	writeJSON(w, http.StatusOK, map[string]any{"deepseek": masked.DeepSeek, "openai": masked.OpenAI})
}

func (h *handlers) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, err := h.deps.Config.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	pc, ok := providerConfig(config.Snapshot(cfg).Providers, id)
	if !ok {
		writeError(w, daemonerrors.New(daemonerrors.NotFound, "unknown provider "+id))
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (h *handlers) handlePutProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := providerTestModel[id]; !ok {
		writeError(w, daemonerrors.New(daemonerrors.NotFound, "unknown provider "+id))
		return
	}

	var body config.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "", "invalid JSON body")
		return
	}

	cfg, err := h.deps.Config.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	providers := cfg.Providers
	switch id {
	case "deepseek":
		providers.DeepSeek = body
	case "openai":
		providers.OpenAI = body
	}

	updated, err := h.deps.Config.Update(r.Context(), config.Patch{Providers: &providers})
	if err != nil {
		writeError(w, err)
		return
	}
	pc, _ := providerConfig(config.Snapshot(updated).Providers, id)
	writeJSON(w, http.StatusOK, pc)
}

func (h *handlers) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := providerTestModel[id]; !ok {
		writeError(w, daemonerrors.New(daemonerrors.NotFound, "unknown provider "+id))
		return
	}

	cfg, err := h.deps.Config.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	providers := cfg.Providers
	switch id {
	case "deepseek":
		providers.DeepSeek = config.ProviderConfig{}
	case "openai":
		providers.OpenAI = config.ProviderConfig{}
	}

	if _, err := h.deps.Config.Update(r.Context(), config.Patch{Providers: &providers}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestProvider issues a minimal real completion call against the
// stored credentials and reports whether it succeeded, per the
// connectivity-check convenience endpoint of §4.I's provider routes.
func (h *handlers) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	model, ok := providerTestModel[id]
	if !ok {
		writeError(w, daemonerrors.New(daemonerrors.NotFound, "unknown provider "+id))
		return
	}

	start := time.Now()
	_, err := h.deps.Provider.Complete(r.Context(), model, []provider.Message{
		{Role: "user", Content: "ping"},
	}, provider.Options{MaxTokens: 8})

	resp := map[string]any{"success": err == nil, "model": model, "latencyMs": time.Since(start).Milliseconds()}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
