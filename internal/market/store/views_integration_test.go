//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "reyu/pkg/domain"
	"reyu/pkg/testutil/containers"
)

func TestViewRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	views := NewViewRedis(rc.Client)
	ctx := context.Background()
	listingID := id.NewListingID()

	n, err := views.Count(ctx, listingID)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := int64(1); i <= 3; i++ {
		n, err = views.Incr(ctx, listingID)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err = views.Count(ctx, listingID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	other, err := views.Count(ctx, id.NewListingID())
	require.NoError(t, err)
	assert.Zero(t, other)
}
