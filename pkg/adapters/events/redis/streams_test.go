package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/podgen/pkg/domain"
)

func TestDecodeMessage(t *testing.T) {
	ev, err := DecodeMessage(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": `{"id":"e1","type":"step.started","run_id":"r1","step_id":"summarize_0"}`},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypeStepStarted, ev.Type)
	assert.Equal(t, "summarize_0", ev.StepID)

	_, err = DecodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = DecodeMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "podgen:events:run.events", StreamKey("run.events"))
}

// TestStreamsEventBus_Integration needs a Redis server at REDIS_TEST_ADDR
func TestStreamsEventBus_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	bus, err := NewStreamsEventBus(client, 100, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer bus.Close()

	topic := "test." + uuid.NewString()
	defer client.Del(context.Background(), StreamKey(topic))

	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Subscribe(context.Background(), topic, func(ctx context.Context, ev domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.ID)
		return nil
	}))

	for _, id := range []string{"e1", "e2"} {
		require.NoError(t, bus.Publish(context.Background(), topic, domain.Event{ID: id, Type: domain.EventTypeRunStarted}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"e1", "e2"}, got)
	mu.Unlock()
}
