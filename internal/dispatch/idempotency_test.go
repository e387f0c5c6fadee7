package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotency(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	idem := NewRedisIdempotency(rdb, 24*time.Hour)
	ctx := context.Background()

	// checking alone never marks: an id stays fresh until Mark
	seen, err := idem.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = idem.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, idem.Mark(ctx, "evt-1"))

	seen, err = idem.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// TTL expiry makes the id fresh again
	s.FastForward(25 * time.Hour)
	seen, err = idem.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
