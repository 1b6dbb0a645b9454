package boundary

import (
	"net/http"
	"time"
)

type embedServiceStatus struct {
	Available bool   `json:"available"`
	URL       string `json:"url"`
	Error     string `json:"error,omitempty"`
}

// handleHealth answers §6's GET /health, extended with the SUPPLEMENTED
// health-detail fields: idle-timer remaining budget and the stale
// sweep's last-run timestamp, additive to the documented
// {status,clients,uptime,embedService} shape.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	embed := embedServiceStatus{URL: h.deps.EmbedURL, Available: true}
	if err := h.deps.Embed.Ping(r.Context()); err != nil {
		embed.Available = false
		embed.Error = err.Error()
	}

	resp := map[string]any{
		"status":       "ok",
		"clients":      h.deps.Hub.ClientCount(),
		"uptime":       time.Since(h.deps.StartedAt).Milliseconds(),
		"embedService": embed,
	}

	if h.deps.Idle != nil {
		resp["idleTimerRemainingMs"] = h.deps.Idle.RemainingMs()
	}
	if last := h.deps.Conversations.LastSweepAt(); !last.IsZero() {
		resp["lastSweepAt"] = last
	}

	writeJSON(w, http.StatusOK, resp)
}
