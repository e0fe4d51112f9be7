package publish

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/translate"
)

type fakeAdder struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeAdder) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func sampleResult() translate.Result {
	return translate.Result{
		ID:          "3f1c",
		Translation: "I need water",
		LatencyMs:   840,
		Confidence: confidence.Result{
			Score: 88,
			Level: confidence.LevelHigh,
		},
		SelectedIndices: []int{0, 4, 9},
		FrameCount:      10,
		SignDurationMs:  1500,
		CreatedAt:       time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish(t *testing.T) {
	fake := &fakeAdder{}
	p := NewWithClient(fake, "", 0)
	assert.Equal(t, DefaultStream, p.Stream())

	id, err := p.Publish(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", id)

	require.Len(t, fake.args, 1)
	args := fake.args[0]
	assert.Equal(t, DefaultStream, args.Stream)
	assert.Zero(t, args.MaxLen)
	assert.False(t, args.Approx)

	values, ok := args.Values.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "I need water", values["translation"])
	assert.Equal(t, "88", values["score"])
	assert.Equal(t, "high", values["level"])
	assert.Equal(t, "false", values["failed"])

	var decoded translate.Result
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, sampleResult(), decoded)
}

func TestPublisher_PublishTrimsStream(t *testing.T) {
	fake := &fakeAdder{}
	p := NewWithClient(fake, "ward:3", 500)

	_, err := p.Publish(context.Background(), sampleResult())
	require.NoError(t, err)

	require.Len(t, fake.args, 1)
	assert.Equal(t, "ward:3", fake.args[0].Stream)
	assert.Equal(t, int64(500), fake.args[0].MaxLen)
	assert.True(t, fake.args[0].Approx)
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("connection reset")
	p := NewWithClient(&fakeAdder{err: boom}, "s", 0)

	_, err := p.Publish(context.Background(), sampleResult())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "xadd failed")
}

func TestValues_FailedResult(t *testing.T) {
	r := sampleResult()
	r.Translation = translate.ErrorText
	r.Error = "deadline exceeded"
	r.Confidence = confidence.Result{Score: 0, Level: confidence.LevelVeryLow}

	values, err := Values(r)
	require.NoError(t, err)
	assert.Equal(t, "true", values["failed"])
	assert.Equal(t, "0", values["score"])
	assert.Equal(t, "very-low", values["level"])
}

func TestNew_Disabled(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestPublisher_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := os.Getenv("HEALTHBRIDGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HEALTHBRIDGE_TEST_REDIS_ADDR not set")
	}

	stream := "healthbridge:test:" + t.Name()
	p, err := New(Config{Addr: addr, Stream: stream})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	defer rdb.Del(ctx, stream)

	id, err := p.Publish(ctx, sampleResult())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := rdb.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "I need water", entries[0].Values["translation"])
}
