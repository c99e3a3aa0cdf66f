package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s LocalStore) {
	t.Helper()
	_, ok, err := s.Get(KeyTemplateID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyTemplateID, "4"))
	require.NoError(t, s.Set(KeyCurrentProjectID, "7"))
	require.NoError(t, s.Set(KeyTemplateID, "5"))

	v, ok, err := s.Get(KeyTemplateID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5", v)

	require.NoError(t, s.Delete(KeyTemplateID))
	require.NoError(t, s.Delete("missing"))
	_, ok, err = s.Get(KeyTemplateID)
	require.NoError(t, err)
	assert.False(t, ok)

	v, _, _ = s.Get(KeyCurrentProjectID)
	assert.Equal(t, "7", v)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(DriverFile, dir)
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)

	_, err = os.Stat(filepath.Join(dir, stateFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreSeesOtherWriters(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileStore(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewFileStore(dir)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Set(KeyTemplateID, "1"))
	v, _, err := b.Get(KeyTemplateID)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, b.Set(KeyTemplateID, "22"))
	v, _, err = a.Get(KeyTemplateID)
	require.NoError(t, err)
	assert.Equal(t, "22", v)
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(DriverSQLite, dir)
	require.NoError(t, err)
	exercise(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get(KeyCurrentProjectID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.Error(t, err)
}
