package boundary

import (
	"encoding/json"
	"net/http"

	"consultd/internal/config"
)

func (h *handlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Config.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config.Snapshot(cfg))
}

// rawPatch decodes into json.RawMessage per field so an unknown top-level
// key can be rejected with 400 rather than silently ignored, per §6.
type rawPatch map[string]json.RawMessage

var knownPatchKeys = map[string]bool{
	"defaultModel": true, "maxMessages": true, "requestTimeout": true,
	"autoOpenWebUI": true, "providers": true,
}

func (h *handlers) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var raw rawPatch
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		badRequest(w, "", "invalid JSON body")
		return
	}
	if len(raw) == 0 {
		badRequest(w, "", "empty patch")
		return
	}
	for key := range raw {
		if !knownPatchKeys[key] {
			badRequest(w, key, "unknown config key")
			return
		}
	}

	var patch config.Patch
	if v, ok := raw["defaultModel"]; ok {
		if err := json.Unmarshal(v, &patch.DefaultModel); err != nil {
			badRequest(w, "defaultModel", "must be a string")
			return
		}
	}
	if v, ok := raw["maxMessages"]; ok {
		if err := json.Unmarshal(v, &patch.MaxMessages); err != nil {
			badRequest(w, "maxMessages", "must be an integer")
			return
		}
	}
	if v, ok := raw["requestTimeout"]; ok {
		if err := json.Unmarshal(v, &patch.RequestTimeout); err != nil {
			badRequest(w, "requestTimeout", "must be an integer")
			return
		}
	}
	if v, ok := raw["autoOpenWebUI"]; ok {
		if err := json.Unmarshal(v, &patch.AutoOpenWebUI); err != nil {
			badRequest(w, "autoOpenWebUI", "must be a boolean")
			return
		}
	}
	if v, ok := raw["providers"]; ok {
		if err := json.Unmarshal(v, &patch.Providers); err != nil {
			badRequest(w, "providers", "invalid providers object")
			return
		}
	}

	cfg, err := h.deps.Config.Update(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config.Snapshot(cfg))
}
