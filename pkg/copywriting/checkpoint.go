package copywriting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore keeps the latest copywriting state per workflow.
type CheckpointStore interface {
	Save(ctx context.Context, state *models.CopywritingState) error
	Load(ctx context.Context, workflowID string) (*models.CopywritingState, error)
}

type MemoryCheckpointStore struct {
	mu     sync.RWMutex
	states map[string]*models.CopywritingState
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{states: make(map[string]*models.CopywritingState)}
}

func (s *MemoryCheckpointStore) Save(_ context.Context, state *models.CopywritingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.WorkflowID] = state.Clone()

	return nil
}

func (s *MemoryCheckpointStore) Load(_ context.Context, workflowID string) (*models.CopywritingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, workflowID)
	}

	return state.Clone(), nil
}

const redisKeyPrefix = "promoflow:copywriting:checkpoint:"

// RedisCheckpointStore stores checkpoints as JSON strings with a TTL.
type RedisCheckpointStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCheckpointStore(client redis.UniversalClient, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (s *RedisCheckpointStore) Save(ctx context.Context, state *models.CopywritingState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	err = s.client.Set(ctx, redisKeyPrefix+state.WorkflowID, data, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", state.WorkflowID, err)
	}

	return nil
}

func (s *RedisCheckpointStore) Load(ctx context.Context, workflowID string) (*models.CopywritingState, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+workflowID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, workflowID)
		}

		return nil, fmt.Errorf("failed to load checkpoint %s: %w", workflowID, err)
	}

	var state models.CopywritingState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", workflowID, err)
	}

	return &state, nil
}
