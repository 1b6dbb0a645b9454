// Package provider implements the Provider Adapter of §4.F: a single
// complete() operation dispatched by model prefix to a DeepSeek-compatible
// or OpenAI-compatible chat-completions endpoint. HTTP shape (bearer
// auth, POST chat/completions, JSON decode) is grounded on the teacher's
// internal/llm/openai.go; the retry/backoff loop is grounded on
// kalambet-tbyd's internal/proxy/openrouter.go exponential backoff,
// generalized from "retry only on 429" to the full retryable status set
// below.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	daemonerrors "consultd/internal/errors"
	"consultd/internal/logging"
)

// Message is one chat turn sent to or received from a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures one completion call.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// Result is the normalized response of a completion call.
type Result struct {
	Content          string
	ReasoningContent string
	Usage            *Usage
	FinishReason     string
	ResponseTimeMs   int64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelSpec is one row of the fixed model table of §4.F.
type ModelSpec struct {
	APIModel               string
	MaxOutputTokens        int
	IsReasoning            bool
	SupportsSystemPrompt   bool
	ReasoningEffort        string // "" when not applicable
	FixedTemperatureZero   bool
	UseMaxCompletionTokens bool
}

var modelTable = map[string]ModelSpec{
	"deepseek-chat": {
		APIModel: "deepseek-chat", MaxOutputTokens: 8192,
		IsReasoning: false, SupportsSystemPrompt: true,
	},
	"deepseek-reasoner": {
		APIModel: "deepseek-reasoner", MaxOutputTokens: 64000,
		IsReasoning: true, SupportsSystemPrompt: false,
		FixedTemperatureZero: true, UseMaxCompletionTokens: true,
	},
	"gpt-5.2": {
		APIModel: "gpt-5.2", MaxOutputTokens: 400000,
		IsReasoning: true, SupportsSystemPrompt: true, ReasoningEffort: "medium",
	},
	"gpt-5.2-pro": {
		APIModel: "gpt-5.2-pro", MaxOutputTokens: 400000,
		IsReasoning: true, SupportsSystemPrompt: true, ReasoningEffort: "high",
	},
}

// Spec looks up the fixed table entry for model. ok is false for an
// unrecognized model name.
func Spec(model string) (ModelSpec, bool) {
	s, ok := modelTable[model]
	return s, ok
}

const (
	maxRetries     = 2
	initialBackoff = 1000 * time.Millisecond
)

// CredentialSource resolves provider base URLs and API keys from the
// Config Service, decrypted, never masked.
type CredentialSource interface {
	DeepSeekCredentials() (apiKey, baseURL string, enabled bool)
	OpenAICredentials() (apiKey, baseURL string, enabled bool)
}

// Adapter dispatches complete() to the DeepSeek- or OpenAI-compatible
// endpoint by model prefix.
type Adapter struct {
	creds      CredentialSource
	httpClient *http.Client
	logger     *logging.Logger
}

func NewAdapter(creds CredentialSource, requestTimeout time.Duration, logger *logging.Logger) *Adapter {
	return &Adapter{
		creds:      creds,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

const (
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
)

func (a *Adapter) resolve(model string) (apiKey, baseURL string, err error) {
	switch {
	case strings.HasPrefix(model, "deepseek-"):
		key, url, enabled := a.creds.DeepSeekCredentials()
		if !enabled || key == "" {
			return "", "", daemonerrors.New(daemonerrors.AuthError, "deepseek credentials not configured")
		}
		if url == "" {
			url = defaultDeepSeekBaseURL
		}
		return key, url, nil
	case strings.HasPrefix(model, "gpt-"):
		key, url, enabled := a.creds.OpenAICredentials()
		if !enabled || key == "" {
			return "", "", daemonerrors.New(daemonerrors.AuthError, "openai credentials not configured")
		}
		if url == "" {
			url = defaultOpenAIBaseURL
		}
		return key, url, nil
	default:
		return "", "", daemonerrors.Field(daemonerrors.ValidationError, "model", "unrecognized model "+model)
	}
}

// Complete issues a chat-completion call against the adapter matching
// model's prefix, retrying per the documented backoff policy.
func (a *Adapter) Complete(ctx context.Context, model string, messages []Message, opts Options) (*Result, error) {
	spec, ok := Spec(model)
	if !ok {
		return nil, daemonerrors.Field(daemonerrors.ValidationError, "model", "unrecognized model "+model)
	}

	apiKey, baseURL, err := a.resolve(model)
	if err != nil {
		return nil, err
	}

	msgs := prepareMessages(spec, opts.SystemPrompt, messages)
	payload := buildPayload(spec, msgs, opts)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("marshaling request: %w", err))
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := a.doComplete(ctx, baseURL, apiKey, spec, body)
		if err == nil {
			result.ResponseTimeMs = time.Since(start).Milliseconds()
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == maxRetries {
			break
		}
		backoff := time.Duration(float64(initialBackoff) * pow2(attempt))
		a.logger.Debug("provider call failed, retrying in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return nil, daemonerrors.Wrap(daemonerrors.Timeout, ctx.Err())
		case <-time.After(backoff):
		}
	}
	if he, ok := lastErr.(*httpError); ok && he.timeout {
		return nil, daemonerrors.Wrap(daemonerrors.Timeout, he)
	}
	return nil, lastErr
}

func pow2(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 2
	}
	return f
}

// prepareMessages merges systemPrompt into the first user message when
// the model doesn't support a dedicated system role, per §4.F.
func prepareMessages(spec ModelSpec, systemPrompt string, messages []Message) []Message {
	if systemPrompt == "" {
		return messages
	}
	if spec.SupportsSystemPrompt {
		out := make([]Message, 0, len(messages)+1)
		out = append(out, Message{Role: "system", Content: systemPrompt})
		out = append(out, messages...)
		return out
	}

	out := make([]Message, len(messages))
	copy(out, messages)
	for i, m := range out {
		if m.Role == "user" {
			out[i].Content = fmt.Sprintf("[System Instructions]\n%s\n\n[User Query]\n%s", systemPrompt, m.Content)
			break
		}
	}
	return out
}

func buildPayload(spec ModelSpec, messages []Message, opts Options) map[string]any {
	payload := map[string]any{
		"model":    spec.APIModel,
		"messages": messages,
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 || maxTokens > spec.MaxOutputTokens {
		maxTokens = spec.MaxOutputTokens
	}
	if spec.UseMaxCompletionTokens {
		payload["max_completion_tokens"] = maxTokens
	} else {
		payload["max_tokens"] = maxTokens
	}

	if spec.FixedTemperatureZero {
		payload["temperature"] = 0
	} else if opts.Temperature != nil {
		payload["temperature"] = *opts.Temperature
	}

	if spec.ReasoningEffort != "" {
		payload["reasoning_effort"] = spec.ReasoningEffort
	}

	return payload
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (a *Adapter) doComplete(ctx context.Context, baseURL, apiKey string, spec ModelSpec, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, &httpError{retryable: true, timeout: true, err: fmt.Errorf("request timed out: %w", err)}
		}
		return nil, &httpError{retryable: false, err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &httpError{
			status:    resp.StatusCode,
			retryable: isRetryableStatus(resp.StatusCode),
			err:       fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &httpError{retryable: false, err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(decoded.Choices) == 0 {
		return nil, &httpError{retryable: false, err: fmt.Errorf("provider returned no choices")}
	}

	choice := decoded.Choices[0]
	return &Result{
		Content:          choice.Message.Content,
		ReasoningContent: choice.Message.ReasoningContent,
		FinishReason:     choice.FinishReason,
		Usage:            decoded.Usage,
	}, nil
}

// httpError carries whether the failure is worth retrying, per the
// documented policy: 429/500/501/502/503/504/599, a "timeout" message,
// or ETIMEDOUT.
type httpError struct {
	status    int
	retryable bool
	timeout   bool
	err       error
}

func (e *httpError) Error() string { return e.err.Error() }

var retryableStatuses = map[int]bool{
	429: true, 500: true, 501: true, 502: true, 503: true, 504: true, 599: true,
}

func isRetryableStatus(status int) bool { return retryableStatuses[status] }

func isTimeoutErr(err error) bool {
	msg := err.Error()
	return strings.Contains(strings.ToLower(msg), "timeout") || strings.Contains(msg, "ETIMEDOUT")
}

func isRetryable(err error) bool {
	he, ok := err.(*httpError)
	if !ok {
		return false
	}
	if he.retryable {
		return true
	}
	msg := strings.ToLower(he.err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(he.err.Error(), "ETIMEDOUT")
}
