package boundary

import (
	"encoding/json"
	"net/http"

	daemonerrors "consultd/internal/errors"
)

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its documented status code and {error:{...}}
// body, per §7. INTERNAL errors have their detail redacted in the
// response; the full error is left to the caller to log.
func writeError(w http.ResponseWriter, err error) {
	kind := daemonerrors.KindOf(err)
	status := daemonerrors.StatusCode(kind)

	body := map[string]any{"kind": string(kind)}
	if de, ok := err.(*daemonerrors.DaemonError); ok && de.Field != "" {
		body["field"] = de.Field
	}
	if kind == daemonerrors.Internal {
		body["message"] = "internal error"
	} else {
		body["message"] = err.Error()
	}

	writeJSON(w, status, map[string]any{"error": body})
}

func badRequest(w http.ResponseWriter, field, msg string) {
	writeError(w, daemonerrors.Field(daemonerrors.ValidationError, field, msg))
}
