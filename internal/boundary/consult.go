package boundary

import (
	"encoding/json"
	"net/http"
	"strings"

	"consultd/internal/orchestrator"
	"consultd/internal/rag"
)

// handleConsult implements §6's REST convenience one-shot consult: a
// simpler {message, provider?, model?, useRag?, systemPrompt?} shape
// than the full consult algorithm's input, routed through the same
// Orchestrator via ConsultInput's SystemPromptOverride/DisableRAG
// extension. provider is accepted for compatibility with the documented
// shape but the model name alone already selects the provider by
// prefix, per §4.F.
func (h *handlers) handleConsult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message      string `json:"message"`
		Provider     string `json:"provider"`
		Model        string `json:"model"`
		UseRAG       *bool  `json:"useRag"`
		SystemPrompt string `json:"systemPrompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, "message", "required")
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	var ragContext string
	if useRAG {
		if hits, err := h.deps.Retriever.Retrieve(r.Context(), req.Message, rag.RetrieveOptions{}); err == nil {
			ragContext = rag.RenderContext(hits)
		}
	}

	result, err := h.deps.Orchestrator.Consult(r.Context(), orchestrator.ConsultInput{
		Question:             req.Message,
		Model:                req.Model,
		SystemPromptOverride: req.SystemPrompt,
		DisableRAG:           !useRAG,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"response": result.Answer,
		"model":    result.Model,
	}
	if result.Metadata.TokensUsed != nil {
		resp["usage"] = map[string]any{"totalTokens": *result.Metadata.TokensUsed}
	}
	if ragContext != "" {
		resp["ragContext"] = ragContext
	}
	writeJSON(w, http.StatusOK, resp)
}
