package blob

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	require.NoError(t, err)

	path, err := s.Save("m1", []byte("%PDF-1.7 body"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "m1.pdf"), path)

	ok, err := s.Exists("m1")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := s.Read("m1")
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7 body", string(data))

	require.NoError(t, s.Delete("m1"))
	ok, err = s.Exists("m1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreMissingBlob(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read("absent")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete("absent"), ErrNotFound)
}

func TestStoreRejectsTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../etc/passwd", `a\b`, "a/b"} {
		_, err := s.Save(id, []byte("x"))
		require.ErrorIs(t, err, ErrInvalidID, id)
	}
}
