package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "rehearsal:result:"

// Store implements ports.ResultStore using Redis.
// Results are stored as JSON; the typed cause is reduced to its message.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for stored results.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for results.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to build a Locker on it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(testName string) string {
	return s.prefix + testName
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the result and indexes its name.
func (s *Store) Save(ctx context.Context, result domain.TestResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(result.TestName), data, s.ttl)

	// Score is the expiry time so List can prune lazily.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: result.TestName,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the latest result for a test.
func (s *Store) Load(ctx context.Context, testName string) (domain.TestResult, error) {
	val, err := s.client.Get(ctx, s.key(testName)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.TestResult{}, fmt.Errorf("result %q: %w", testName, domain.ErrNotFound)
		}
		return domain.TestResult{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var result domain.TestResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return domain.TestResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return result, nil
}

// Delete removes the result and its index entry.
func (s *Store) Delete(ctx context.Context, testName string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(testName))
	pipe.ZRem(ctx, s.indexKey(), testName)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the names of unexpired results, pruning expired index
// entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired results: %w", err)
	}

	names, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return names, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
