package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunOfflineCreateAndValidate(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, runOffline("create", "add provider ratings", dir))
	files, err := filepath.Glob(filepath.Join(dir, "*_add_provider_ratings.sql"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, runOffline("validate", "", dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("SELECT 1;"), 0o644))
	require.Error(t, runOffline("validate", "", dir))
}

func TestRunOfflineRoutesDatabaseCommands(t *testing.T) {
	for _, cmd := range []string{"up", "down", "to", "status", "version", "bogus"} {
		require.ErrorIs(t, runOffline(cmd, "", ""), errNeedsDatabase, cmd)
	}
	require.Error(t, runOffline("create", "", t.TempDir()))
}
