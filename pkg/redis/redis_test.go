package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/futureindex/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}

	client, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: "1"}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}

func TestCache_Disabled(t *testing.T) {
	client, _ := New(context.Background(), &config.Config{})
	cache := NewCache(client, "test")
	ctx := context.Background()

	assert.False(t, cache.Enabled())

	// When Redis is disabled, cache operations should be no-ops
	require.NoError(t, cache.Set(ctx, "key", 42.0, TTLMarketCap))

	var result float64
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestCache_NilSafe(t *testing.T) {
	var cache *Cache
	assert.False(t, cache.Enabled())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "marketcap:ASTS", MarketCapKey("ASTS"))
	assert.Equal(t, "revenues:RKLB:2", RevenuesKey("RKLB", 2))

	cache := NewCache(&Client{}, "futureindex")
	assert.Equal(t, "futureindex:cache:marketcap:ASTS", cache.key(MarketCapKey("ASTS")))
}

func TestCacheEncoding_RoundTrip(t *testing.T) {
	type period struct {
		Year    int
		Revenue float64
	}
	in := []period{{2024, 1.5e9}, {2023, 9.8e8}}

	data, err := encode(in)
	require.NoError(t, err)

	var out []period
	require.NoError(t, decode(data, &out))
	assert.Equal(t, in, out)
}

func TestClient_PingDisabled(t *testing.T) {
	client, err := New(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))

	var nilClient *Client
	assert.NoError(t, nilClient.Ping(context.Background()))
}
