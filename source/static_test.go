package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/changefeed/types"
)

func TestStatic_ListPartitions(t *testing.T) {
	t.Run("returns all partitions", func(t *testing.T) {
		partitions := []types.Partition{
			{ID: "0"},
			{ID: "1"},
			{ID: "2", Parents: []string{"x"}},
		}
		src := NewStatic(partitions)

		result, err := src.ListPartitions(t.Context())

		require.NoError(t, err)
		require.Equal(t, partitions, result)
	})

	t.Run("returns empty list when no partitions", func(t *testing.T) {
		result, err := NewStaticIDs().ListPartitions(t.Context())

		require.NoError(t, err)
		require.Empty(t, result)
	})

	t.Run("does not expose internal slice", func(t *testing.T) {
		src := NewStatic([]types.Partition{{ID: "p1", Parents: []string{"p0"}}})

		result, err := src.ListPartitions(t.Context())
		require.NoError(t, err)
		result[0].ID = "changed"
		result[0].Parents[0] = "changed"

		again, err := src.ListPartitions(t.Context())
		require.NoError(t, err)
		require.Equal(t, "p1", again[0].ID)
		require.Equal(t, []string{"p0"}, again[0].Parents)
	})

	t.Run("honors canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := NewStaticIDs("0").ListPartitions(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStatic_Split(t *testing.T) {
	src := NewStaticIDs("0", "1", "2")

	require.True(t, src.Split("1", "1a", "1b"))
	require.False(t, src.Split("missing", "x"))

	result, err := src.ListPartitions(t.Context())
	require.NoError(t, err)
	require.Equal(t, []types.Partition{
		{ID: "0"},
		{ID: "1a", Parents: []string{"1"}},
		{ID: "1b", Parents: []string{"1"}},
		{ID: "2"},
	}, result)
}

func TestStatic_Remove(t *testing.T) {
	src := NewStaticIDs("0", "1")
	src.Remove("0")
	src.Remove("missing")

	result, err := src.ListPartitions(t.Context())
	require.NoError(t, err)
	require.Equal(t, []types.Partition{{ID: "1"}}, result)
}
