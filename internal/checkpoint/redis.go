package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore keeps records as fields of a single hash, <prefix>:records.
// Records are write-once: a second Put for the same id leaves the first record in place.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	logger *zerolog.Logger
}

func NewRedisStore(client redis.UniversalClient, prefix string, logger *zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "qa-eval"
	}
	return &RedisStore{
		client: client,
		key:    prefix + ":records",
		logger: logger,
	}
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	ok, err := s.client.HExists(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("check record %s: %w", id, err)
	}
	return ok, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, record models.AnnotationRecord) error {
	if id == "" {
		return ErrEmptyID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}

	created, err := s.client.HSetNX(ctx, s.key, id, data).Result()
	if err != nil {
		return fmt.Errorf("write record %s: %w", id, err)
	}
	if !created {
		s.logger.Warn().Str("id", id).Msg("record already exists, keeping the stored one")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.AnnotationRecord, error) {
	if id == "" {
		return models.AnnotationRecord{}, ErrEmptyID
	}

	data, err := s.client.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.AnnotationRecord{}, ErrNotFound
	}
	if err != nil {
		return models.AnnotationRecord{}, fmt.Errorf("read record %s: %w", id, err)
	}
	return decodeRecord(id, data)
}

func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.HKeys(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
