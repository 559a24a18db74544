// Package chat implements the chat turn orchestration: persist the user
// message, reload history, stream the reply from the provider, persist the
// assistant message.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ollamachat/domain"
	"ollamachat/store"
)

// StreamEvent is one event relayed to the consumer of a chat turn. A
// terminal failure arrives as a final event with Err set, after which the
// channel closes.
type StreamEvent struct {
	Content string
	Err     error
}

// Service orchestrates chat turns between the store and the provider.
type Service struct {
	store        store.Store
	provider     domain.Provider
	defaultModel string
	logger       *zap.Logger
	turns        turnGate
}

// New creates a chat service.
func New(st store.Store, provider domain.Provider, defaultModel string, logger *zap.Logger) *Service {
	return &Service{
		store:        st,
		provider:     provider,
		defaultModel: defaultModel,
		logger:       logger,
		turns:        turnGate{locks: make(map[string]*gateEntry)},
	}
}

// titleLimit is how many characters of the first user input become the
// session title.
const titleLimit = 30

// StreamChat runs one chat turn. It persists the user message, reloads the
// session history, streams the completion from the provider relaying each
// chunk in arrival order, and persists the accumulated assistant reply.
//
// The returned channel is consumed exactly once per turn. Failures before
// the provider call return an error directly with no channel. A provider
// failure mid-stream is reported twice on purpose: once as an inline
// human-readable chunk, and once as the terminal Err event after the
// persistence step has run with whatever was accumulated.
func (s *Service) StreamChat(ctx context.Context, sessionID, userInput, modelName, systemPrompt string) (<-chan StreamEvent, error) {
	// Turns against one session are serialized; concurrent callers queue
	// up rather than interleave their history reads and message writes.
	unlock := s.turns.lock(sessionID)

	fail := func(err error) (<-chan StreamEvent, error) {
		unlock()
		return nil, err
	}

	// 1. Persist the user turn. A failure here aborts the whole operation
	// before any provider traffic.
	userMsg := domain.NewMessage(domain.RoleUser, userInput)
	if err := s.store.AddMessage(ctx, sessionID, userMsg); err != nil {
		return fail(err)
	}

	// 2. Reload context. The re-read is the authority on current history;
	// the session may have been deleted since step 1.
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	loadedCount := len(session.Messages)

	// 3. Inject the system prompt into the in-memory history only. It is
	// never persisted.
	history := session.Messages
	if systemPrompt != "" && (len(history) == 0 || history[0].Role != domain.RoleSystem) {
		history = append([]domain.Message{*domain.NewMessage(domain.RoleSystem, systemPrompt)}, history...)
	}

	out := make(chan StreamEvent)
	go func() {
		defer unlock()
		defer close(out)
		s.runTurn(ctx, out, sessionID, userInput, modelName, history, loadedCount)
	}()
	return out, nil
}

// runTurn covers steps 4-7: stream, relay, persist, rename.
func (s *Service) runTurn(ctx context.Context, out chan<- StreamEvent, sessionID, userInput, modelName string, history []domain.Message, loadedCount int) {
	var acc strings.Builder
	var streamErr error

	upstream, err := s.provider.ChatStream(ctx, modelName, history, nil)
	if err != nil {
		streamErr = err
	} else {
	relay:
		for {
			select {
			case <-ctx.Done():
				streamErr = ctx.Err()
				break relay
			case resp, ok := <-upstream:
				if !ok || resp.Done {
					break relay
				}
				if resp.Err != nil {
					streamErr = resp.Err
					break relay
				}
				acc.WriteString(resp.Content)
				if !emit(ctx, out, StreamEvent{Content: resp.Content}) {
					streamErr = ctx.Err()
					break relay
				}
			}
		}
	}

	if streamErr != nil {
		s.logger.Error("chat stream failed",
			zap.String("session_id", sessionID),
			zap.Error(streamErr))
		// Inline error text for consumers watching the chunk stream. It is
		// deliberately kept out of the accumulator so the stored assistant
		// message holds only real model output.
		emit(ctx, out, StreamEvent{Content: fmt.Sprintf("\n\n*Error generating response: %s*", streamErr)})
	}

	// Persistence runs on every exit path, including caller cancellation,
	// with whatever was accumulated up to that point.
	persistCtx := context.WithoutCancel(ctx)
	if acc.Len() > 0 {
		assistantMsg := domain.NewMessage(domain.RoleAssistant, acc.String())
		if err := s.store.AddMessage(persistCtx, sessionID, assistantMsg); err != nil {
			s.logger.Error("failed to persist assistant message",
				zap.String("session_id", sessionID),
				zap.Error(err))
			if streamErr == nil {
				streamErr = err
			}
		} else if loadedCount <= 2 {
			// First turn: name the session after the opening input.
			if err := s.store.UpdateSessionTitle(persistCtx, sessionID, autoTitle(userInput)); err != nil {
				s.logger.Warn("failed to auto-title session",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
		}
	}

	if streamErr != nil {
		emit(ctx, out, StreamEvent{Err: streamErr})
	}
}

func emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func autoTitle(input string) string {
	// Truncate on characters, not bytes, so a multibyte input never
	// produces an invalid-UTF-8 title.
	runes := []rune(input)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return input
}

// NewSession creates an empty session titled "New Chat". An empty model
// name falls back to the configured default.
func (s *Service) NewSession(ctx context.Context, modelName string) (*domain.ChatSession, error) {
	if modelName == "" {
		modelName = s.defaultModel
	}
	return s.store.CreateSession(ctx, domain.DefaultTitle, modelName)
}

// ListSessions returns session headers, most recently updated first.
func (s *Service) ListSessions(ctx context.Context) ([]domain.ChatSession, error) {
	return s.store.ListSessions(ctx)
}

// GetSession returns a session with its full message history.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

// DeleteSession removes a session and all of its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID)
}

// RenameSession sets a session's title.
func (s *Service) RenameSession(ctx context.Context, sessionID, title string) error {
	return s.store.UpdateSessionTitle(ctx, sessionID, title)
}

// ListModels returns the provider's model catalog.
func (s *Service) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return s.provider.ListModels(ctx)
}

// PullModel starts a model download and relays its progress records.
func (s *Service) PullModel(ctx context.Context, name string) (<-chan domain.PullProgress, error) {
	return s.provider.PullModel(ctx, name)
}

// DeleteModel removes a model from the provider.
func (s *Service) DeleteModel(ctx context.Context, name string) error {
	return s.provider.DeleteModel(ctx, name)
}

// turnGate hands out one mutex per session id so a session sees at most
// one in-flight turn.
type turnGate struct {
	mu    sync.Mutex
	locks map[string]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

func (g *turnGate) lock(id string) func() {
	g.mu.Lock()
	entry, ok := g.locks[id]
	if !ok {
		entry = &gateEntry{}
		g.locks[id] = entry
	}
	entry.refs++
	g.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		g.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(g.locks, id)
		}
		g.mu.Unlock()
	}
}
