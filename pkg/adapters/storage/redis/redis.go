package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

const (
	runKeyPrefix = "podgen:run:"
	runIndexKey  = "podgen:runs"
)

// RunArchive implements RunArchive using Redis. Records are JSON values with
// a TTL; a sorted set scored by submission time indexes them for listing.
type RunArchive struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunArchive creates a new Redis run archive
func NewRunArchive(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunArchive{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun stores the record and refreshes its TTL
func (s *RunArchive) SaveRun(ctx context.Context, record *domain.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, RunKey(record.RunID), data, s.ttl)
	pipe.ZAdd(ctx, runIndexKey, redis.Z{
		Score:  float64(record.SubmittedAt.UnixMilli()),
		Member: record.RunID,
	})
	if s.ttl > 0 {
		// Drop index entries whose records have certainly expired
		cutoff := time.Now().Add(-s.ttl).UnixMilli()
		pipe.ZRemRangeByScore(ctx, runIndexKey, "-inf", fmt.Sprintf("(%d", cutoff))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("run_id", record.RunID),
		zap.String("status", string(record.Status)))

	return nil
}

// GetRun loads one record
func (s *RunArchive) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	data, err := s.client.Get(ctx, RunKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var record domain.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &record, nil
}

// ListRuns returns up to limit records, newest submission first
func (s *RunArchive) ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := s.client.ZRevRange(ctx, runIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.RunRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = RunKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	records := make([]*domain.RunRecord, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var record domain.RunRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Warn("skipping unreadable run record",
				zap.String("run_id", ids[i]),
				zap.Error(err))
			continue
		}
		records = append(records, &record)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, runIndexKey, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune run index", zap.Error(err))
		}
	}

	return records, nil
}

// DeleteRun removes a record and its index entry
func (s *RunArchive) DeleteRun(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, RunKey(runID))
	pipe.ZRem(ctx, runIndexKey, runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// RunKey returns the Redis key of a run record
func RunKey(runID string) string {
	return runKeyPrefix + runID
}
