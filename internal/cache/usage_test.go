package cache_test

import (
	"context"
	"testing"

	"github.com/shawn/vesta-provisioner/internal/cache"
	"github.com/shawn/vesta-provisioner/internal/vesta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ cache.Usage = (*cache.RedisUsage)(nil)

func TestMockUsage(t *testing.T) {
	c := cache.NewMock()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "svc-1", vesta.Usage{"U_DISK": "12"}))
	u, ok, err := c.Get(ctx, "svc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "12", u.String("U_DISK"))

	require.NoError(t, c.Delete(ctx, "svc-1"))
	_, ok, _ = c.Get(ctx, "svc-1")
	assert.False(t, ok)
}
