package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unreachable(t *testing.T) {
	_, err := New(WriterConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestMasterCache_BreakerOpensOnDeadServer(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	c := NewWithClient(client, WriterConfig{})
	defer c.Close()
	assert.Equal(t, DefaultKey, c.Key())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, err := c.Get(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
	}
	_, _, err := c.Get(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestMasterCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c, err := New(WriterConfig{Addr: addr, Key: "test:scripmaster:" + t.Name(), TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Client().Del(ctx, c.Key(), c.Key()+fetchedSuffix)

	_, _, err = c.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	at := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, c.Set(ctx, at, []byte(`[{"token":"1"}]`)))

	body, got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"token":"1"}]`, string(body))
	assert.True(t, at.Equal(got))
}
