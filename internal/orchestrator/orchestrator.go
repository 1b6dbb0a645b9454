// Package orchestrator implements the Consultation Orchestrator of §4.G:
// the consult/continue/end state transitions that compose the Config
// Service, Provider Adapter, Conversation Service, and RAG Pipeline into
// one operation. No single teacher file matches this shape 1:1; grounded
// compositionally on the teacher's internal/ingest/ingest.go orchestration
// style (one narrow interface per collaborator) and its logging idiom.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"consultd/internal/config"
	daemonerrors "consultd/internal/errors"
	"consultd/internal/provider"
	"consultd/internal/rag"
	"consultd/internal/store"
)

// ConversationService is the Conversation Service dependency.
type ConversationService interface {
	Create(ctx context.Context, model, systemPrompt string) (*store.Conversation, error)
	Get(ctx context.Context, id string) (*store.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string) (int, error)
	Archive(ctx context.Context, id, reason string) (bool, error)
	CanContinue(ctx context.Context, conversationID string) (bool, error)
}

// Completer is the Provider Adapter dependency.
type Completer interface {
	Complete(ctx context.Context, model string, messages []provider.Message, opts provider.Options) (*provider.Result, error)
}

// ConfigSource is the Config Service dependency, used to resolve the
// default model.
type ConfigSource interface {
	Load(ctx context.Context) (*config.Config, error)
}

// Retriever is the RAG Pipeline dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) ([]rag.Hit, error)
}

// Service is the Consultation Orchestrator.
type Service struct {
	conversations ConversationService
	provider      Completer
	config        ConfigSource
	retriever     Retriever
}

func NewService(conversations ConversationService, prov Completer, cfg ConfigSource, retriever Retriever) *Service {
	return &Service{conversations: conversations, provider: prov, config: cfg, retriever: retriever}
}

// ConsultInput is consult's request shape, per §4.G. SystemPromptOverride
// and DisableRAG extend it for the REST convenience endpoint of §6, which
// lets a caller supply its own system prompt and opt out of retrieval
// rather than selecting a mode.
type ConsultInput struct {
	Question             string
	Mode                 Mode
	Context              string
	DocIDs               []string
	DocTitles            []string
	Folder               string
	Model                string
	SystemPromptOverride string
	DisableRAG           bool
}

// ContinueInput is continue's request shape.
type ContinueInput struct {
	ConversationID string
	Message        string
	DocIDs         []string
	DocTitles      []string
	Folder         string
}

// Thinking carries a truncated view of reasoning-model output.
type Thinking struct {
	Summary string
}

// Metadata accompanies a consult/continue result.
type Metadata struct {
	ResponseTimeMs int64
	TokensUsed     *int
	Thinking       *Thinking
}

// ConsultResult is the response shape of consult and continue.
type ConsultResult struct {
	ConversationID string
	Answer         string
	Model          string
	Mode           Mode
	MessageCount   int
	CanContinue    bool
	Metadata       Metadata
}

// EndResult is end's response shape, extended with Success/Reason so
// callers can distinguish a genuine transition from a no-op on an
// already-archived conversation.
type EndResult struct {
	Status         string
	ConversationID string
	TotalMessages  int
	Success        bool
	Reason         string
}

// Consult runs the 8-step consult algorithm of §4.G.
func (s *Service) Consult(ctx context.Context, in ConsultInput) (*ConsultResult, error) {
	model, err := s.resolveModel(ctx, in.Model)
	if err != nil {
		return nil, err
	}

	mode, systemPrompt := systemPromptFor(in.Mode)
	if in.SystemPromptOverride != "" {
		systemPrompt = in.SystemPromptOverride
	}
	if !in.DisableRAG {
		systemPrompt = s.mergeRagContext(ctx, systemPrompt, in.Question, rag.RetrieveOptions{
			DocIDs: in.DocIDs, DocTitles: in.DocTitles, Folder: in.Folder,
		})
	}

	conv, err := s.conversations.Create(ctx, model, systemPrompt)
	if err != nil {
		return nil, err
	}

	userTurn := in.Question
	if in.Context != "" {
		userTurn = fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", in.Context, in.Question)
	}

	return s.runTurn(ctx, conv.ID, model, systemPrompt, userTurn, mode)
}

// Continue runs steps 5-8 of consult against an existing conversation,
// using its stored systemPrompt. RAG context for this turn is resolved
// anew from message and merged only for this call, never persisted.
func (s *Service) Continue(ctx context.Context, in ContinueInput) (*ConsultResult, error) {
	conv, err := s.conversations.Get(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	systemPrompt := s.mergeRagContext(ctx, conv.SystemPrompt, in.Message, rag.RetrieveOptions{
		DocIDs: in.DocIDs, DocTitles: in.DocTitles, Folder: in.Folder,
	})

	return s.runTurn(ctx, conv.ID, conv.Model, systemPrompt, in.Message, "")
}

// runTurn implements steps 5-8: append the user turn, call the provider,
// append the reply, and assemble the result.
func (s *Service) runTurn(ctx context.Context, conversationID, model, systemPrompt, userTurn string, mode Mode) (*ConsultResult, error) {
	if _, err := s.conversations.AddMessage(ctx, conversationID, "user", userTurn); err != nil {
		return nil, err
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	spec, _ := provider.Spec(model)
	result, err := s.provider.Complete(ctx, model, toProviderMessages(conv.Messages), provider.Options{
		SystemPrompt: systemPrompt,
		MaxTokens:    spec.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}

	messageCount, err := s.conversations.AddMessage(ctx, conversationID, "assistant", result.Content)
	if err != nil {
		return nil, err
	}

	canContinue, err := s.conversations.CanContinue(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var tokensUsed *int
	if result.Usage != nil {
		total := result.Usage.TotalTokens
		tokensUsed = &total
	}

	return &ConsultResult{
		ConversationID: conversationID,
		Answer:         result.Content,
		Model:          model,
		Mode:           mode,
		MessageCount:   messageCount,
		CanContinue:    canContinue,
		Metadata: Metadata{
			ResponseTimeMs: result.ResponseTimeMs,
			TokensUsed:     tokensUsed,
			Thinking:       summarizeThinking(result.ReasoningContent),
		},
	}, nil
}

// End archives the conversation as completed. changed is false when it
// was already archived, which the response surfaces rather than erroring.
func (s *Service) End(ctx context.Context, conversationID string) (*EndResult, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	changed, err := s.conversations.Archive(ctx, conversationID, "completed")
	if err != nil {
		return nil, err
	}

	result := &EndResult{
		Status:         "ended",
		ConversationID: conversationID,
		TotalMessages:  len(conv.Messages),
		Success:        changed,
	}
	if !changed {
		result.Reason = "conversation already archived"
	}
	return result, nil
}

func (s *Service) resolveModel(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return "", daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	return cfg.DefaultModel, nil
}

// mergeRagContext retrieves RAG hits for query and, if any survive,
// appends the rendered context block to systemPrompt as an additional
// paragraph, per §4.G step 3.
func (s *Service) mergeRagContext(ctx context.Context, systemPrompt, query string, opts rag.RetrieveOptions) string {
	hits, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil || len(hits) == 0 {
		return systemPrompt
	}
	ragContext := rag.RenderContext(hits)
	if ragContext == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + ragContext
}

func toProviderMessages(msgs []store.Message) []provider.Message {
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// thinkingSummaryLimit is §4.G's cap on the first lines of reasoning
// content surfaced to the caller.
const thinkingSummaryLimit = 500

func summarizeThinking(reasoning string) *Thinking {
	if reasoning == "" {
		return nil
	}
	runes := []rune(reasoning)
	if len(runes) <= thinkingSummaryLimit {
		return &Thinking{Summary: strings.TrimSpace(reasoning)}
	}
	return &Thinking{Summary: strings.TrimSpace(string(runes[:thinkingSummaryLimit])) + "..."}
}
