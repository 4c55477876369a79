package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// PendingPromptKey is the Redis key prefix for follow-up prompt state.
const PendingPromptKey = "pending:"

// DefaultPendingTTL bounds how long a yes/no prompt stays answerable.
const DefaultPendingTTL = 30 * time.Minute

// RedisConversationState implements out.ConversationState on Redis. Prompts
// are single-use: TakePending reads and deletes atomically with GETDEL so a
// duplicate delivery can never confirm the same prompt twice.
type RedisConversationState struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConversationState creates the state store. A zero ttl uses the
// default.
func NewRedisConversationState(client *redis.Client, ttl time.Duration) *RedisConversationState {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &RedisConversationState{client: client, ttl: ttl}
}

func pendingKey(businessID uuid.UUID, sender string) string {
	return PendingPromptKey + businessID.String() + ":" + sender
}

// SetPending stores the prompt for a (business, sender) pair, replacing any
// previous one.
func (s *RedisConversationState) SetPending(ctx context.Context, businessID uuid.UUID, sender string, prompt *domain.PendingPrompt) error {
	if prompt == nil {
		return errors.New("prompt cannot be nil")
	}

	payload, err := json.Marshal(prompt)
	if err != nil {
		return fmt.Errorf("failed to marshal pending prompt: %w", err)
	}

	if err := s.client.Set(ctx, pendingKey(businessID, sender), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending prompt: %w", err)
	}
	return nil
}

// TakePending returns and consumes the stored prompt, or nil when none.
func (s *RedisConversationState) TakePending(ctx context.Context, businessID uuid.UUID, sender string) (*domain.PendingPrompt, error) {
	raw, err := s.client.GetDel(ctx, pendingKey(businessID, sender)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending prompt: %w", err)
	}

	var prompt domain.PendingPrompt
	if err := json.Unmarshal([]byte(raw), &prompt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending prompt: %w", err)
	}
	return &prompt, nil
}
