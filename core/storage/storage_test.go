package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageGetPut(t *testing.T) {
	s, err := NewMemoryStorage()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("k", []byte("v")))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestWriteBatchAndIterate(t *testing.T) {
	s, err := NewMemoryStorage()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteBatch(map[string][]byte{
		"doc:a": []byte("1"),
		"doc:b": []byte("2"),
		"bal:x": []byte("3"),
	}))

	var keys []string
	require.NoError(t, s.Iterate("doc:", func(key string, value []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"doc:a", "doc:b"}, keys)

	n, err := s.Count("bal:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	empty, err := s.Empty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestEncryptedStorageOnDisk(t *testing.T) {
	dek := bytes.Repeat([]byte{7}, 32)
	c, err := NewCipher(dek)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state")
	s, err := NewStorage(path, WithCipher(c))
	require.NoError(t, err)
	require.NoError(t, s.Put("secret", []byte("pointer")))

	raw, err := s.db.Get([]byte("secret"), nil)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pointer")

	got, err := s.Get("secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("pointer"), got)
	require.NoError(t, s.Close())
}

func TestCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.Error(t, err)

	_, err = CipherFromBase64("!!!")
	assert.Error(t, err)
}
