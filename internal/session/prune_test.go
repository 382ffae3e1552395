package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, root, id string, age time.Duration) {
	t.Helper()
	store, err := NewFileStore(root, id)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), KeyTasks, []byte(`[]`)))
	if age > 0 {
		stamp := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(filepath.Join(store.Dir(), KeyTasks+".json"), stamp, stamp))
		require.NoError(t, os.Chtimes(store.Dir(), stamp, stamp))
	}
}

func TestPruneFileSessions(t *testing.T) {
	root := t.TempDir()
	seedSession(t, root, ShellID(101), 0)
	seedSession(t, root, ShellID(202), 0)
	seedSession(t, root, ShellID(303), 48*time.Hour)
	seedSession(t, root, "named", 48*time.Hour)
	seedSession(t, root, "fresh", time.Minute)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	alive := map[int]bool{101: true, 303: true}
	pruned, err := PruneFileSessions(root, PruneOptions{
		TTL:   12 * time.Hour,
		Alive: func(pid int) bool { return alive[pid] },
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ShellID(202), ShellID(303), "named"}, pruned)

	left, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, entry := range left {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{ShellID(101), "fresh", "stray.txt"}, names)
}

func TestPruneFileSessionsChecksAreOptional(t *testing.T) {
	root := t.TempDir()
	seedSession(t, root, ShellID(7), 72*time.Hour)

	pruned, err := PruneFileSessions(root, PruneOptions{})
	require.NoError(t, err)
	assert.Empty(t, pruned)

	pruned, err = PruneFileSessions(filepath.Join(root, "missing"), PruneOptions{TTL: time.Hour})
	require.NoError(t, err)
	assert.Empty(t, pruned)
}

func TestShellID(t *testing.T) {
	assert.Equal(t, "shell-42", ShellID(42))
	pid, ok := shellPID("shell-42")
	assert.True(t, ok)
	assert.Equal(t, 42, pid)
	for _, id := range []string{"shell-", "shell-x", "named", "shell--3"} {
		_, ok := shellPID(id)
		assert.False(t, ok, id)
	}
}
