package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesta/internal/store"
)

func TestOpenMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "none", FileName))
	require.NoError(t, err)
	assert.False(t, s.LoggedIn())
	assert.Nil(t, s.User())
}

func TestSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vesta", FileName)
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Save("tok", &store.User{ID: "u1", Email: "a@b.test", Role: store.RoleUser}))
	assert.Equal(t, "tok", s.Token())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", again.Token())
	require.NotNil(t, again.User())
	assert.Equal(t, "u1", again.User().ID)
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save("tok", nil))

	require.NoError(t, s.Clear())
	assert.False(t, s.LoggedIn())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// clearing twice is fine
	assert.NoError(t, s.Clear())
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Open(path)
	assert.Error(t, err)
}
