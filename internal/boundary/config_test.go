package boundary

import (
	"net/http"
	"testing"

	"consultd/internal/config"
)

func TestHandleGetConfig_MasksCredentials(t *testing.T) {
	h := newHarness()
	h.cfg.cfg.Providers.DeepSeek = config.ProviderConfig{Enabled: true, APIKey: "sk-abcdefghijklmnop"}

	rec := h.do(http.MethodGet, "/api/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var cfg config.Config
	decodeBody(t, rec, &cfg)
	if cfg.Providers.DeepSeek.APIKey == "sk-abcdefghijklmnop" {
		t.Error("expected masked API key, got plaintext")
	}
}

func TestHandlePatchConfig_UpdatesField(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPatch, "/api/config", map[string]any{"maxMessages": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if len(h.cfg.updates) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(h.cfg.updates))
	}
	if *h.cfg.updates[0].MaxMessages != 10 {
		t.Errorf("MaxMessages = %d, want 10", *h.cfg.updates[0].MaxMessages)
	}
}

func TestHandlePatchConfig_RejectsEmptyPatch(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPatch, "/api/config", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePatchConfig_RejectsUnknownKey(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPatch, "/api/config", map[string]any{"bogusKey": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec, &resp)
	errBody := resp["error"].(map[string]any)
	if errBody["field"] != "bogusKey" {
		t.Errorf("error.field = %v, want bogusKey", errBody["field"])
	}
}

func TestHandlePatchConfig_RejectsWrongType(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPatch, "/api/config", map[string]any{"maxMessages": "not-a-number"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
