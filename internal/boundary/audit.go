package boundary

import "net/http"

// handleAudit exposes the audit log supplement read-only, per
// SPEC_FULL.md's "Audit log" item: GET /api/audit.
func (h *handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Documents.ListAuditEntries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
