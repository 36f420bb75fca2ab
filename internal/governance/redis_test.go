package governance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr, client := newMiniredisClient(t)
	l := NewRedisLimiter(client)
	policy := Policy{Limit: 2, Window: time.Minute}
	ctx := context.Background()

	d1 := l.Check(ctx, "1.2.3.4", "/api/whm/createacct", policy)
	d2 := l.Check(ctx, "1.2.3.4", "/api/whm/createacct", policy)
	d3 := l.Check(ctx, "1.2.3.4", "/api/whm/createacct", policy)

	assert.False(t, d1.Blocked)
	assert.Equal(t, 1, d1.Remaining)
	assert.False(t, d2.Blocked)
	assert.True(t, d3.Blocked)
	assert.Equal(t, 0, d3.Remaining)
	assert.Equal(t, 3, d3.Count)

	ttl := mr.TTL("rl:1.2.3.4:/api/whm/createacct")
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	d4 := l.Check(ctx, "1.2.3.4", "/api/whm/createacct", policy)
	assert.False(t, d4.Blocked)
	assert.Equal(t, 1, d4.Count)
}

func TestRedisLimiterPrefix(t *testing.T) {
	mr, client := newMiniredisClient(t)
	l := NewRedisLimiter(client, WithPrefix("gw:"))

	l.Check(context.Background(), "c", "/r", Policy{Limit: 5, Window: time.Minute})

	assert.True(t, mr.Exists("gw:c:/r"))
}

func TestRedisLimiterFallsBackWhenUnavailable(t *testing.T) {
	mr, client := newMiniredisClient(t)
	fallback := NewMemoryLimiter()
	l := NewRedisLimiter(client, WithFallback(fallback), WithTimeout(200*time.Millisecond))
	mr.Close()

	policy := Policy{Limit: 1, Window: time.Minute}
	ctx := context.Background()
	require.False(t, l.Check(ctx, "c", "/r", policy).Blocked)
	assert.True(t, l.Check(ctx, "c", "/r", policy).Blocked)
	assert.Equal(t, 1, fallback.Len())
}

func TestRedisLimiterNilClientUsesFallback(t *testing.T) {
	fallback := NewMemoryLimiter()
	l := NewRedisLimiter(nil, WithFallback(fallback))

	l.Check(context.Background(), "c", "/r", Policy{Limit: 1, Window: time.Minute})

	assert.Equal(t, 1, fallback.Len())
}
