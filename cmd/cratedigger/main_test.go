package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("database:\n  driver: sqlite\n  dsn: %s\nlogging:\n  level: error\npipeline:\n  lockFile: %s\n",
		filepath.Join(dir, "crate.db"), filepath.Join(dir, "run.lock"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatsOnFreshDatabase(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfg, "stats")
	require.NoError(t, err)
	for _, state := range []string{"discovered", "enriched", "scored", "processed", "promoted"} {
		assert.Contains(t, out, state)
	}
}

func TestRandomOnEmptyCatalog(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfg, "random", "--genre", "funk", "--exclude", "a,b")
	require.NoError(t, err)
	assert.Equal(t, "no sample available", strings.TrimSpace(out))
}

func TestIngestRejectsUnknownKind(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI(t, "--config", cfg, "ingest", "--kind", "rss", "--ref", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source kind")
}

func TestIngestWithoutCredentialsFails(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEYS", "")
	cfg := writeTestConfig(t)

	_, err := runCLI(t, "--config", cfg, "ingest", "--kind", "playlist", "--ref", "PL1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api credentials")
}

func TestInvalidConfigIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0o600))

	_, err := runCLI(t, "--config", path, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Database.Driver")
}

func TestRenderCounts(t *testing.T) {
	out := renderCounts("found", 3, "added", 2)
	assert.Contains(t, out, "found")
	assert.Contains(t, out, "added")
	assert.NotContains(t, out, "FOUND")
	assert.Contains(t, out, "3")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
