package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxdoc/internal/ir"
)

func TestGet_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Collection("humans").Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_LargeIntegersExact(t *testing.T) {
	s := setupTestStore(t)
	c := s.Collection("humans")
	ctx := context.Background()

	_, err := c.PersistInsert(ctx, "big", ir.Object{"n": ir.Int(9007199254740993)})
	require.NoError(t, err)

	got, err := c.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, ir.Int(9007199254740993), got.Data["n"])
}

func TestList(t *testing.T) {
	s := setupTestStore(t)
	c := s.Collection("humans")
	ctx := context.Background()

	empty, err := c.List(ctx, false)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = c.PersistInsert(ctx, "b", human("b", "bob"))
	require.NoError(t, err)
	a, err := c.PersistInsert(ctx, "a", human("a", "alice"))
	require.NoError(t, err)
	_, err = c.PersistRemove(ctx, "a", a.Rev)
	require.NoError(t, err)

	live, err := c.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "b", live[0].ID)

	all, err := c.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"b", "a"}, []string{all[0].ID, all[1].ID}, "ordered by seq")
}

func TestHistory(t *testing.T) {
	s := setupTestStore(t)
	c := s.Collection("humans")
	ctx := context.Background()

	first, err := c.PersistInsert(ctx, "p-1", human("p-1", "alice"))
	require.NoError(t, err)
	second, err := c.PersistUpdate(ctx, "p-1", human("p-1", "bob"), first.Rev)
	require.NoError(t, err)
	third, err := c.PersistRemove(ctx, "p-1", second.Rev)
	require.NoError(t, err)

	history, err := c.History(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{first.Rev, second.Rev, third.Rev},
		[]string{history[0].Rev, history[1].Rev, history[2].Rev})
	assert.True(t, history[2].Deleted)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.Seq, seq)
}
