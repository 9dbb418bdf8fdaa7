package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgc-labs/docquery/internal/core"
)

func TestFSStorePutGetDelete(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "metadata/doc1", []byte("hello")))
	data, err := s.Get(ctx, "metadata/doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, s.Delete(ctx, "metadata/doc1"))
	_, err = s.Get(ctx, "metadata/doc1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "metadata/doc1"), core.ErrNotFound)
}

func TestFSStoreListByPrefix(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "chunks/doc1/000000", []byte("a")))
	require.NoError(t, s.Put(ctx, "chunks/doc1/000004", []byte("b")))
	require.NoError(t, s.Put(ctx, "chunks/doc1/index", []byte("c")))
	require.NoError(t, s.Put(ctx, "chunks/doc2/000000", []byte("d")))
	require.NoError(t, s.Put(ctx, "metadata/doc1", []byte("e")))

	keys, err := s.List(ctx, "chunks/doc1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"chunks/doc1/000000", "chunks/doc1/000004", "chunks/doc1/index"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
