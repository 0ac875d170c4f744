package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sitesearch.yaml")
	content := "sites:\n  - url: https://example.com\n    name: Example\n" +
		"database:\n  path: " + filepath.Join(dir, "index.db") + "\n" +
		"log:\n  level: disabled\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "crawl", "index-page", "search", "stats"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "search", "fox")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigNotFound, apperrors.GetCode(err))
}

func TestSearchAndStatsOnEmptyIndex(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "--config", path, "search", "fox")
	require.NoError(t, err)
	assert.Contains(t, out, "0 results")

	out, err = run(t, "--config", path, "stats", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "sites=0 pages=0 lemmas=0")
	assert.Contains(t, out, "index consistent")

	_, err = run(t, "--config", path, "search", "   ")
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, apperrors.GetCode(err))
}

func TestIndexPageOutsideSites(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "index-page", "https://elsewhere.example.org/")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeOutsideSites, apperrors.GetCode(err))
}
