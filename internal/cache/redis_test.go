package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilClient_IsSafe(t *testing.T) {
	var r *RedisClient
	ctx := context.Background()

	assert.NoError(t, r.SaveDraft(ctx, Draft{UserID: 1, SlideID: 2}))
	_, err := r.LoadDraft(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.NoError(t, r.DeleteDraft(ctx, 1, 2))
	assert.NoError(t, r.Close())
	assert.Error(t, r.Health(ctx))
}

func TestDraftKey(t *testing.T) {
	assert.Equal(t, "draft:3:slide:9", draftKey(3, 9))
}
