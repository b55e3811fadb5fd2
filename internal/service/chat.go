package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/engine"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/nats"
	"github.com/capitalize-ai/ai-twin/internal/ratelimit"
	"github.com/capitalize-ai/ai-twin/internal/relay"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

// ErrRateLimited is returned when a session has used up its window.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitError carries how long the session has to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds the wait up to whole seconds, at least 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	return max(1, int(math.Ceil(e.RetryAfter.Seconds())))
}

// Profiler supplies the owner profile used to ground the instructions.
type Profiler interface {
	Profile(ctx context.Context) string
}

// ChatService admits user messages and starts assistant turns.
type ChatService struct {
	store     *transcript.Store
	limiter   *ratelimit.Limiter
	relay     *relay.Relay
	profiler  Profiler
	publisher nats.Publisher
	clock     clock.Clock
	logger    *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(
	store *transcript.Store,
	limiter *ratelimit.Limiter,
	rel *relay.Relay,
	profiler Profiler,
	publisher nats.Publisher,
	c clock.Clock,
	log *logger.Logger,
) *ChatService {
	if publisher == nil {
		publisher = nats.NopPublisher{}
	}
	return &ChatService{
		store:     store,
		limiter:   limiter,
		relay:     rel,
		profiler:  profiler,
		publisher: publisher,
		clock:     c,
		logger:    log,
	}
}

// Send checks the session's rate limit, stores the user message and
// returns the assistant turn's events. The turn runs while the sequence
// is iterated. An empty sessionKey falls back to the thread id.
func (s *ChatService) Send(ctx context.Context, threadID, sessionKey string, req model.SendMessageRequest) (iter.Seq[model.StreamEvent], error) {
	if sessionKey == "" {
		sessionKey = threadID
	}

	if !s.limiter.Allow(sessionKey) {
		err := &RateLimitError{RetryAfter: s.limiter.RetryAfter(sessionKey)}
		s.publishRateLimit(ctx, threadID, err)
		return nil, err
	}

	thread := s.store.GetThread(threadID)
	if req.Personality != "" && req.Personality != thread.Personality("") {
		if thread.Metadata == nil {
			thread.Metadata = map[string]any{}
		}
		thread.Metadata[model.MetadataPersonality] = req.Personality
		s.store.PutThread(thread)
	}

	input := s.store.AppendItem(threadID, model.Item{
		ID:        engine.NewItemID("msg"),
		Kind:      model.KindUserMessage,
		Content:   model.ItemContent{Text: req.Content},
		CreatedAt: s.clock.Now(),
	})

	s.logger.Debug("User message stored",
		zap.String("thread_id", threadID),
		zap.String("item_id", input.ID),
		zap.Uint64("sequence", input.Sequence),
	)

	instructions := engine.Instructions(thread.Personality(engine.DefaultPersonality), s.profiler.Profile(ctx))

	return s.relay.Respond(ctx, relay.Turn{
		Thread:       thread,
		Input:        input,
		Instructions: instructions,
	}), nil
}

func (s *ChatService) publishRateLimit(ctx context.Context, threadID string, rle *RateLimitError) {
	event := model.TurnEvent{
		ID:        engine.NewItemID("evt"),
		ThreadID:  threadID,
		Type:      model.TurnEventRateLimit,
		Reason:    ErrRateLimited.Error(),
		Metadata:  map[string]any{"retry_after": rle.RetryAfterSeconds()},
		CreatedAt: s.clock.Now(),
	}
	if err := s.publisher.PublishTurnEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish rate limit event", zap.String("thread_id", threadID), zap.Error(err))
	}
}
