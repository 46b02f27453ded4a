package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// StatsRecorder keeps outcome counters in redis hashes: a cumulative total per
// operation and a per-minute bucket that expires after ttl.
type StatsRecorder struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

type Option func(*StatsRecorder)

func WithPrefix(prefix string) Option {
	return func(s *StatsRecorder) { s.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) Option {
	return func(s *StatsRecorder) { s.ttl = d }
}

func NewStatsRecorder(rdb *goredis.Client, opts ...Option) *StatsRecorder {
	s := &StatsRecorder{
		rdb:    rdb,
		prefix: "tokens:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient parses a redis:// URL and checks the server is reachable.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *StatsRecorder) RecordOutcome(ctx context.Context, ev domain.OutcomeEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(ev.Operation), field, 1)

	bucketKey := s.MinuteKey(ev.Operation, at)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the cumulative outcome counts for op.
func (s *StatsRecorder) Totals(ctx context.Context, op string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.TotalKey(op)).Result()
	if err != nil {
		return nil, fmt.Errorf("read totals: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			return nil, fmt.Errorf("parse %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func (s *StatsRecorder) TotalKey(op string) string {
	return s.prefix + ":" + op + ":total"
}

func (s *StatsRecorder) MinuteKey(op string, at time.Time) string {
	return fmt.Sprintf("%s:%s:minute:%s", s.prefix, op, at.UTC().Format("200601021504"))
}

func (s *StatsRecorder) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
