package boundary

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"consultd/internal/store"
)

type chatSummary struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	EndReason    string `json:"endReason,omitempty"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func summarize(c *store.Conversation) chatSummary {
	return chatSummary{
		ID: c.ID, Model: c.Model, Status: c.Status, EndReason: c.EndReason,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt.Format(timeLayoutRFC3339),
		UpdatedAt:    c.UpdatedAt.Format(timeLayoutRFC3339),
	}
}

const timeLayoutRFC3339 = "2006-01-02T15:04:05Z07:00"

// handleChatHistory returns every conversation, active and archived,
// newest-updated first.
func (h *handlers) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	active, err := h.deps.Conversations.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	archived, err := h.deps.Conversations.ListArchived(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	all := make([]chatSummary, 0, len(active)+len(archived))
	for _, c := range active {
		all = append(all, summarize(c))
	}
	for _, c := range archived {
		all = append(all, summarize(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt > all[j].UpdatedAt })

	writeJSON(w, http.StatusOK, all)
}

func (h *handlers) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Conversations.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleDeleteAllArchived(w http.ResponseWriter, r *http.Request) {
	archived, err := h.deps.Conversations.ListArchived(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for _, c := range archived {
		if err := h.deps.Conversations.Delete(r.Context(), c.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": len(archived)})
}
