// Package publish mirrors translation results onto a Redis stream so other
// services on the ward network can consume them.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthbridge/healthbridge/internal/translate"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "healthbridge:translations"

// ErrDisabled is returned by New when no address is configured.
var ErrDisabled = errors.New("publish: redis address not configured")

// Config holds the Redis connection and stream settings.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	// MaxLen trims the stream approximately to this many entries. Zero keeps everything.
	MaxLen int64 `mapstructure:"max_len"`
}

// StreamAdder is the subset of the Redis client the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher writes translation results to a Redis stream with XADD.
type Publisher struct {
	client StreamAdder
	stream string
	maxLen int64
	closer func() error
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	p := NewWithClient(rdb, cfg.Stream, cfg.MaxLen)
	p.closer = rdb.Close
	return p, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c StreamAdder, stream string, maxLen int64) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: c, stream: stream, maxLen: maxLen}
}

// Stream returns the stream key results are written to.
func (p *Publisher) Stream() string {
	return p.stream
}

// Publish appends r to the stream and returns the entry ID.
func (p *Publisher) Publish(ctx context.Context, r translate.Result) (string, error) {
	values, err := Values(r)
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed: %w", err)
	}
	return id, nil
}

// Close releases the underlying connection when the publisher owns it.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Values flattens r into stream fields. The full result is carried as JSON
// in the payload field; the rest are there for consumers that filter
// without decoding.
func Values(r translate.Result) (map[string]interface{}, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return map[string]interface{}{
		"id":          r.ID,
		"translation": r.Translation,
		"score":       strconv.Itoa(r.Confidence.Score),
		"level":       string(r.Confidence.Level),
		"latency_ms":  strconv.FormatInt(r.LatencyMs, 10),
		"failed":      strconv.FormatBool(r.Failed()),
		"payload":     string(payload),
	}, nil
}
