package nodekey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIsStable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	pub1, priv1, err := LoadOrCreate(dir)
	require.NoError(t, err)
	pub2, priv2, err := LoadOrCreate(dir)
	require.NoError(t, err)

	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)

	info, err := os.Stat(filepath.Join(dir, PrivKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PrivKeyFile), []byte("abcd"), 0o600))
	_, _, err := Load(dir)
	assert.Error(t, err)

	_, _, err = LoadOrCreate(dir)
	assert.Error(t, err, "a corrupt key must not be silently replaced")
}
