package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentrelay/agent"
)

// RedisStore is a Redis-based implementation of CheckpointStore.
// Suitable for distributed production deployments.
//
// Layout (prefix defaults to "agentrelay:"):
//
//	<prefix>ckpt:threads          ZSET  thread id -> last update (unix ms)
//	<prefix>ckpt:<thread>:steps   HASH  step -> serialized state
//	<prefix>ckpt:<thread>:status  STRING status of the highest step
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

// NewRedisStore creates a Redis store from configuration
func NewRedisStore(config StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStoreWithClient(client, config.KeyPrefix)
	s.ownClient = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps
// ownership of client; Close does not close it.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "agentrelay:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "ckpt:",
	}
}

// Close closes the store
func (s *RedisStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) threadsKey() string {
	return s.keyPrefix + "threads"
}

func (s *RedisStore) stepsKey(threadID string) string {
	return s.keyPrefix + threadID + ":steps"
}

func (s *RedisStore) statusKey(threadID string) string {
	return s.keyPrefix + threadID + ":status"
}

// Save stores one checkpoint
func (s *RedisStore) Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error {
	if err := validateKey(threadID, step); err != nil {
		return err
	}
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	// status tracks the highest step, so an out-of-order rewrite of an
	// older step must not overwrite it
	fields, err := s.client.HKeys(ctx, s.stepsKey(threadID)).Result()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	latest := true
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil && n > step {
			latest = false
			break
		}
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.stepsKey(threadID), strconv.Itoa(step), data)
	if latest {
		pipe.Set(ctx, s.statusKey(threadID), string(state.Status), 0)
	}
	pipe.ZAdd(ctx, s.threadsKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: threadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadHistory returns the checkpoints of threadID in step order
func (s *RedisStore) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}

	raw, err := s.client.HGetAll(ctx, s.stepsKey(threadID)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	type stepData struct {
		step int
		data string
	}
	entries := make([]stepData, 0, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		entries = append(entries, stepData{step: n, data: v})
	}
	slices.SortFunc(entries, func(a, b stepData) int { return a.step - b.step })

	history := make([]*agent.WorkflowState, 0, len(entries))
	for _, e := range entries {
		st, err := agent.UnmarshalState([]byte(e.data))
		if err != nil {
			return nil, err
		}
		history = append(history, st)
	}
	return history, nil
}

// ListThreads lists threads from the update index
func (s *RedisStore) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, s.threadsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	infos := make([]ThreadInfo, 0, len(members))
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}

		pipe := s.client.Pipeline()
		lenCmd := pipe.HLen(ctx, s.stepsKey(id))
		statusCmd := pipe.Get(ctx, s.statusKey(id))
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}

		infos = append(infos, ThreadInfo{
			ThreadID:  id,
			Status:    agent.Status(statusCmd.Val()),
			Steps:     int(lenCmd.Val()),
			UpdatedAt: time.UnixMilli(int64(m.Score)).UTC(),
		})
	}
	sortThreads(infos)
	return infos, nil
}

// DeleteThread removes all keys of a thread
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	delCmd := pipe.Del(ctx, s.stepsKey(threadID), s.statusKey(threadID))
	pipe.ZRem(ctx, s.threadsKey(), threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
