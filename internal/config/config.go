// Package config implements the Config Service of §4.D: single-writer,
// read-any key/value configuration backed by the store's config_entries
// table, with AES-256-GCM credential encryption at rest. Structure
// (nested provider config, validation-by-range) is grounded on the
// teacher's internal/config/config.go Validate()/Load() shape; persistence
// moves from a JSON file to the store per spec.
package config

import (
	"context"
	"encoding/json"
	"fmt"

	daemonerrors "consultd/internal/errors"
)

// ProviderConfig holds one provider's credentials and enablement.
type ProviderConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Providers is the nested providers record of §3.
type Providers struct {
	DeepSeek ProviderConfig `json:"deepseek"`
	OpenAI   ProviderConfig `json:"openai"`
}

// Config is the composed effective configuration: defaults overlaid with
// any stored overrides.
type Config struct {
	DefaultModel   string    `json:"defaultModel"`
	MaxMessages    int       `json:"maxMessages"`
	RequestTimeout int       `json:"requestTimeout"`
	AutoOpenWebUI  bool      `json:"autoOpenWebUI"`
	Providers      Providers `json:"providers"`
}

// Defaults returns the built-in default configuration per §6.
func Defaults() Config {
	return Config{
		DefaultModel:   "deepseek-reasoner",
		MaxMessages:    5,
		RequestTimeout: 180_000,
		AutoOpenWebUI:  false,
		Providers:      Providers{},
	}
}

// Store is the persistence dependency the Config Service needs.
type Store interface {
	GetConfigEntries(ctx context.Context) (map[string]string, error)
	PutConfigEntries(ctx context.Context, entries map[string]string) error
	AddAuditEntry(ctx context.Context, operationType, details string) error
}

// Notifier is the hub dependency used to emit config:updated after a
// successful write.
type Notifier interface {
	Broadcast(eventType string, data any)
}

// Service is the Config Service.
type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Load composes the defaults with any stored overrides and decrypts
// provider credentials. Decryption failure surfaces as a config error
// rather than silently returning ciphertext or an empty key.
func (s *Service) Load(ctx context.Context) (*Config, error) {
	cfg := Defaults()

	entries, err := s.store.GetConfigEntries(ctx)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("loading config entries: %w", err))
	}

	if v, ok := entries["defaultModel"]; ok {
		cfg.DefaultModel = v
	}
	if v, ok := entries["maxMessages"]; ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.MaxMessages = n
		}
	}
	if v, ok := entries["requestTimeout"]; ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.RequestTimeout = n
		}
	}
	if v, ok := entries["autoOpenWebUI"]; ok {
		cfg.AutoOpenWebUI = v == "true"
	}
	if v, ok := entries["providers"]; ok {
		var stored Providers
		if err := json.Unmarshal([]byte(v), &stored); err != nil {
			return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("decoding stored providers: %w", err))
		}
		if stored.DeepSeek.APIKey != "" {
			plain, err := decryptCredential(stored.DeepSeek.APIKey)
			if err != nil {
				return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("decrypting deepseek key: %w", err))
			}
			stored.DeepSeek.APIKey = plain
		}
		if stored.OpenAI.APIKey != "" {
			plain, err := decryptCredential(stored.OpenAI.APIKey)
			if err != nil {
				return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("decrypting openai key: %w", err))
			}
			stored.OpenAI.APIKey = plain
		}
		cfg.Providers = stored
	}

	return &cfg, nil
}

// Patch is a partial config write; nil fields are left unchanged.
type Patch struct {
	DefaultModel   *string    `json:"defaultModel,omitempty"`
	MaxMessages    *int       `json:"maxMessages,omitempty"`
	RequestTimeout *int       `json:"requestTimeout,omitempty"`
	AutoOpenWebUI  *bool      `json:"autoOpenWebUI,omitempty"`
	Providers      *Providers `json:"providers,omitempty"`
}

// Update validates patch, persists it atomically, and emits
// config:updated. An empty patch is rejected per §6.
func (s *Service) Update(ctx context.Context, patch Patch) (*Config, error) {
	if patch.DefaultModel == nil && patch.MaxMessages == nil && patch.RequestTimeout == nil &&
		patch.AutoOpenWebUI == nil && patch.Providers == nil {
		return nil, daemonerrors.New(daemonerrors.ValidationError, "empty patch")
	}

	if patch.MaxMessages != nil && (*patch.MaxMessages < 1 || *patch.MaxMessages > 50) {
		return nil, daemonerrors.Field(daemonerrors.ValidationError, "maxMessages", "must be in [1, 50]")
	}
	if patch.RequestTimeout != nil && (*patch.RequestTimeout < 30_000 || *patch.RequestTimeout > 600_000) {
		return nil, daemonerrors.Field(daemonerrors.ValidationError, "requestTimeout", "must be in [30000, 600000]")
	}

	entries := make(map[string]string)
	if patch.DefaultModel != nil {
		entries["defaultModel"] = *patch.DefaultModel
	}
	if patch.MaxMessages != nil {
		entries["maxMessages"] = fmt.Sprintf("%d", *patch.MaxMessages)
	}
	if patch.RequestTimeout != nil {
		entries["requestTimeout"] = fmt.Sprintf("%d", *patch.RequestTimeout)
	}
	if patch.AutoOpenWebUI != nil {
		entries["autoOpenWebUI"] = fmt.Sprintf("%v", *patch.AutoOpenWebUI)
	}
	if patch.Providers != nil {
		toStore := *patch.Providers
		if toStore.DeepSeek.APIKey != "" {
			ct, err := encryptCredential(toStore.DeepSeek.APIKey)
			if err != nil {
				return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
			}
			toStore.DeepSeek.APIKey = ct
		}
		if toStore.OpenAI.APIKey != "" {
			ct, err := encryptCredential(toStore.OpenAI.APIKey)
			if err != nil {
				return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
			}
			toStore.OpenAI.APIKey = ct
		}
		data, err := json.Marshal(toStore)
		if err != nil {
			return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
		}
		entries["providers"] = string(data)
	}

	if err := s.store.PutConfigEntries(ctx, entries); err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("persisting config: %w", err))
	}
	s.store.AddAuditEntry(ctx, "config.update", fmt.Sprintf("keys=%v", keysOf(entries)))

	cfg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Broadcast("config:updated", maskedSnapshot(cfg))
	}
	return cfg, nil
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// maskedSnapshot never includes ciphertext or plaintext credentials in a
// broadcast or REST response — only a masked suffix, per §4.D.
func maskedSnapshot(cfg *Config) Config {
	snap := *cfg
	if snap.Providers.DeepSeek.APIKey != "" {
		snap.Providers.DeepSeek.APIKey = MaskKey(snap.Providers.DeepSeek.APIKey)
	}
	if snap.Providers.OpenAI.APIKey != "" {
		snap.Providers.OpenAI.APIKey = MaskKey(snap.Providers.OpenAI.APIKey)
	}
	return snap
}

// Snapshot returns the masked view of cfg, for REST responses that must
// never leak plaintext or ciphertext.
func Snapshot(cfg *Config) Config { return maskedSnapshot(cfg) }

// MaxExchanges resolves the current maxMessages setting, falling back to
// the default if the store can't be read (never blocks a message append
// on a config read failure).
func (s *Service) MaxExchanges(ctx context.Context) int {
	cfg, err := s.Load(ctx)
	if err != nil {
		return Defaults().MaxMessages
	}
	return cfg.MaxMessages
}

// DeepSeekCredentials and OpenAICredentials satisfy provider.CredentialSource,
// resolving decrypted keys for the Provider Adapter. A Load failure is
// treated as "not configured" rather than propagated, so a config read
// error and a missing key both reach the caller as AUTH_ERROR.
func (s *Service) DeepSeekCredentials() (apiKey, baseURL string, enabled bool) {
	cfg, err := s.Load(context.Background())
	if err != nil {
		return "", "", false
	}
	return cfg.Providers.DeepSeek.APIKey, cfg.Providers.DeepSeek.BaseURL, cfg.Providers.DeepSeek.Enabled
}

func (s *Service) OpenAICredentials() (apiKey, baseURL string, enabled bool) {
	cfg, err := s.Load(context.Background())
	if err != nil {
		return "", "", false
	}
	return cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL, cfg.Providers.OpenAI.Enabled
}
