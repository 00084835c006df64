package history_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/adapters/history"
	"go.trai.ch/tern/internal/core/domain"
)

func TestStore_PutGet(t *testing.T) {
	t.Parallel()

	store := history.NewStore(filepath.Join(t.TempDir(), "history"))
	rec := domain.RunRecord{
		TestID:    "api/login",
		Status:    domain.StatusFailed,
		Reason:    domain.ReasonTimeout,
		Attempts:  3,
		Duration:  1500 * time.Millisecond,
		Timestamp: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Put(rec))

	got, err := store.Get("api/login")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)
	assert.False(t, got.Passed())
}

func TestStore_PutReplaces(t *testing.T) {
	t.Parallel()

	store := history.NewStore(t.TempDir())
	require.NoError(t, store.Put(domain.RunRecord{TestID: "a", Status: domain.StatusFailed}))
	require.NoError(t, store.Put(
		domain.RunRecord{TestID: "a", Status: domain.StatusPassed, Attempts: 1},
		domain.RunRecord{TestID: "b", Status: domain.StatusSkipped},
	))

	a, err := store.Get("a")
	require.NoError(t, err)
	assert.True(t, a.Passed())

	b, err := store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, b.Status)
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	got, err := history.NewStore(t.TempDir()).Get("never-ran")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_GetCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := history.NewStore(dir)
	require.NoError(t, store.Put(domain.RunRecord{TestID: "broken"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("{not json"), 0o600))

	_, err = store.Get("broken")
	require.ErrorContains(t, err, domain.ErrHistoryCorrupt.Error())
}

func TestStore_PutNothing(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "unused")
	require.NoError(t, history.NewStore(dir).Put())

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
