package cache

import (
	"context"
	"recall_edu_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNextQuestionCache_NilClientIsNoop(t *testing.T) {
	c := NewNextQuestionCache(nil, 0)
	ctx := context.Background()

	version, err := c.Version(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, c.Set(ctx, &model.NextQuestionView{PersonalAssignmentID: 1}, version))
	view, err := c.Get(ctx, 1, version)
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.NoError(t, c.Invalidate(ctx, 1))
}

func TestNextQuestionKeys(t *testing.T) {
	assert.Equal(t, "next_question:pa:42:v0", nextQuestionKey(42, 0))
	assert.Equal(t, "next_question:pa:42:v3", nextQuestionKey(42, 3))
	assert.Equal(t, "next_question:pa:42:version", versionKey(42))
	assert.NotEqual(t, nextQuestionKey(42, 1), nextQuestionKey(42, 2))
}
