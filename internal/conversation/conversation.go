// Package conversation implements the Conversation Service of §4.E:
// CRUD and state transitions over conversations and their message lists,
// limit enforcement, and the periodic stale sweep. Grounded on the
// teacher's store.SaveChatMessage/GetSessionHistory/ListSessions
// (session renamed to conversation, generalized to carry
// status/endReason/endedAt) and CleanupExpiredTokens for the
// periodic-sweep-over-a-timestamp shape.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	daemonerrors "consultd/internal/errors"
	"consultd/internal/store"
)

// Conversation and Message alias the store's row shapes; this package
// adds behavior (limits, events, sweeping) on top rather than redefining
// the data model.
type Conversation = store.Conversation
type Message = store.Message

// Store is the persistence dependency this service needs.
type Store interface {
	CreateConversation(ctx context.Context, id, model, systemPrompt string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListActive(ctx context.Context) ([]*store.Conversation, error)
	ListArchived(ctx context.Context) ([]*store.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string) (int, error)
	MessageCount(ctx context.Context, conversationID string) (int, error)
	Archive(ctx context.Context, id, reason string) (bool, error)
	ArchiveStaleSince(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Notifier is the hub dependency used to emit lifecycle events.
type Notifier interface {
	Broadcast(eventType string, data any)
}

// MaxMessagesSource resolves the current configured exchange limit;
// implemented by *config.Service in production wiring.
type MaxMessagesSource interface {
	MaxExchanges(ctx context.Context) int
}

const staleAfter = 5 * time.Minute
const sweepInterval = 60 * time.Second

// Service is the Conversation Service.
type Service struct {
	store    Store
	notifier Notifier
	limits   MaxMessagesSource

	mu        sync.RWMutex
	lastSweep time.Time
}

func NewService(store Store, notifier Notifier, limits MaxMessagesSource) *Service {
	return &Service{store: store, notifier: notifier, limits: limits}
}

// LastSweepAt returns the time the most recent stale sweep completed,
// the zero Time if none has run yet. Surfaced by the health detail
// supplement.
func (s *Service) LastSweepAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSweep
}

// Create starts a new active conversation.
func (s *Service) Create(ctx context.Context, model, systemPrompt string) (*Conversation, error) {
	id := uuid.NewString()
	conv, err := s.store.CreateConversation(ctx, id, model, systemPrompt)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	s.notifier.Broadcast("conversation:created", conv)
	return conv, nil
}

// Get loads a conversation with its messages.
func (s *Service) Get(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.NotFound, err)
	}
	return conv, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*Conversation, error) {
	cs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	return cs, nil
}

func (s *Service) ListArchived(ctx context.Context) ([]*Conversation, error) {
	cs, err := s.store.ListArchived(ctx)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	return cs, nil
}

// AddMessage appends a message, enforcing the 2×maxExchanges cap. Hitting
// the cap archives the conversation as timeout, per §7/§8's scenario 1
// (a limit-exceeded continue ends the conversation, not just the call).
func (s *Service) AddMessage(ctx context.Context, conversationID, role, content string) (int, error) {
	limit := 2 * s.limits.MaxExchanges(ctx)

	existing, err := s.store.MessageCount(ctx, conversationID)
	if err != nil {
		return 0, daemonerrors.Wrap(daemonerrors.NotFound, err)
	}
	if existing >= limit {
		if _, archiveErr := s.Archive(ctx, conversationID, "timeout"); archiveErr != nil {
			return existing, archiveErr
		}
		return existing, daemonerrors.New(daemonerrors.LimitExceeded, "message limit reached for conversation")
	}

	count, err := s.store.AddMessage(ctx, conversationID, role, content)
	if err != nil {
		return 0, daemonerrors.Wrap(daemonerrors.NotFound, err)
	}
	s.notifier.Broadcast("conversation:message", map[string]any{
		"conversationId": conversationID,
		"message": store.Message{
			Ordinal:        count - 1,
			ConversationID: conversationID,
			Role:           role,
			Content:        content,
			CreatedAt:      time.Now().UTC(),
		},
	})
	return count, nil
}

// CanContinue reports whether another addMessage call is permitted.
func (s *Service) CanContinue(ctx context.Context, conversationID string) (bool, error) {
	count, err := s.store.MessageCount(ctx, conversationID)
	if err != nil {
		return false, daemonerrors.Wrap(daemonerrors.NotFound, err)
	}
	return count < 2*s.limits.MaxExchanges(ctx), nil
}

// Archive transitions id to archived/reason. changed is false if the
// conversation was already archived.
func (s *Service) Archive(ctx context.Context, id, reason string) (bool, error) {
	changed, err := s.store.Archive(ctx, id, reason)
	if err != nil {
		return false, daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	if changed {
		s.notifier.Broadcast("conversation:ended", map[string]string{"conversationId": id, "reason": reason})
	}
	return changed, nil
}

// Delete hard-deletes a conversation.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	s.notifier.Broadcast("conversation:deleted", map[string]string{"conversationId": id})
	return nil
}

// Sweep archives every active conversation idle past staleAfter and
// emits conversation:ended for each. Called once at startup and then on
// sweepInterval by RunSweepLoop.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	ids, err := s.store.ArchiveStaleSince(ctx, cutoff)
	if err != nil {
		return nil, daemonerrors.Wrap(daemonerrors.Internal, err)
	}
	s.mu.Lock()
	s.lastSweep = time.Now().UTC()
	s.mu.Unlock()
	for _, id := range ids {
		s.notifier.Broadcast("conversation:ended", map[string]string{"conversationId": id, "reason": "timeout"})
	}
	return ids, nil
}

// RunSweepLoop runs Sweep every sweepInterval until ctx is cancelled. The
// caller is expected to have already run one Sweep at startup.
func (s *Service) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
