package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPlugin(t *testing.T, dir, folder string, manifest map[string]any) {
	t.Helper()

	pluginDir := filepath.Join(dir, folder)
	require.NoError(t, os.MkdirAll(pluginDir, 0755))

	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, ManifestFileName), data, 0644))

	if logic, ok := manifest["logic"].(string); ok && logic != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pluginDir, logic), []byte("export default {}"), 0644))
	}
}

func validManifest(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"version":     "1.0.0",
		"author":      "Acme",
		"description": "test plugin",
		"logic":       "index.js",
		"permissions": []string{"storage::isolated"},
	}
}

func newTestScanner(t *testing.T, dir string) (*Scanner, *Registry) {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	registry := NewRegistry()
	scanner := NewScanner(
		[]Source{NewDirSource(dir, logger)},
		NewManifestLoader(logger),
		registry,
		logger,
	)
	return scanner, registry
}

func TestScanner_Scan(t *testing.T) {
	t.Run("registers valid plugins and skips folders without manifests", func(t *testing.T) {
		dir := t.TempDir()
		writeTestPlugin(t, dir, "alpha", validManifest("Alpha"))
		writeTestPlugin(t, dir, "beta", validManifest("Beta"))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-plugin"), 0755))

		scanner, registry := newTestScanner(t, dir)
		result, err := scanner.Scan(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, result.Discovered)
		assert.Len(t, result.New, 2)
		assert.Empty(t, result.Updated)
		assert.Empty(t, result.Errors)
		assert.Equal(t, 2, registry.Len())
	})

	t.Run("one bad manifest never aborts the run", func(t *testing.T) {
		dir := t.TempDir()
		writeTestPlugin(t, dir, "good-one", validManifest("Good One"))
		writeTestPlugin(t, dir, "good-two", validManifest("Good Two"))

		missingAuthor := validManifest("Bad")
		delete(missingAuthor, "author")
		writeTestPlugin(t, dir, "bad-folder", missingAuthor)

		scanner, registry := newTestScanner(t, dir)
		result, err := scanner.Scan(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 3, result.Discovered)
		assert.Len(t, result.New, 2)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "bad-folder", result.Errors[0].Identifier)
		assert.Contains(t, result.Errors[0].Message, "author")
		assert.Equal(t, 2, registry.Len())
	})

	t.Run("unreachable logic artifact is a per-entry error", func(t *testing.T) {
		dir := t.TempDir()

		broken := validManifest("Broken")
		broken["logic"] = "does-not-exist.js"
		pluginDir := filepath.Join(dir, "broken")
		require.NoError(t, os.MkdirAll(pluginDir, 0755))
		data, err := json.Marshal(broken)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(pluginDir, ManifestFileName), data, 0644))

		scanner, _ := newTestScanner(t, dir)
		result, err := scanner.Scan(context.Background())
		require.NoError(t, err)

		require.Len(t, result.Errors, 1)
		assert.Equal(t, "broken", result.Errors[0].Identifier)
		assert.Contains(t, result.Errors[0].Message, "not reachable")
	})

	t.Run("rescan of unchanged plugin reports updated, not new", func(t *testing.T) {
		dir := t.TempDir()
		writeTestPlugin(t, dir, "alpha", validManifest("Alpha"))

		scanner, registry := newTestScanner(t, dir)

		first, err := scanner.Scan(context.Background())
		require.NoError(t, err)
		require.Len(t, first.New, 1)
		id := first.New[0]

		before, ok := registry.Get(id)
		require.True(t, ok)

		second, err := scanner.Scan(context.Background())
		require.NoError(t, err)
		assert.Empty(t, second.New)
		assert.Equal(t, []string{id}, second.Updated)

		after, ok := registry.Get(id)
		require.True(t, ok)
		assert.Equal(t, before.DiscoveredAt, after.DiscoveredAt)
		assert.True(t, after.LastValidatedAt.After(before.LastValidatedAt) ||
			after.LastValidatedAt.Equal(before.LastValidatedAt))
	})

	t.Run("logic path uses file scheme", func(t *testing.T) {
		dir := t.TempDir()
		writeTestPlugin(t, dir, "alpha", validManifest("Alpha"))

		scanner, registry := newTestScanner(t, dir)
		result, err := scanner.Scan(context.Background())
		require.NoError(t, err)
		require.Len(t, result.New, 1)

		entry, ok := registry.Get(result.New[0])
		require.True(t, ok)
		assert.True(t, len(entry.LogicPath) > 7 && entry.LogicPath[:7] == "file://")
		assert.Equal(t, "alpha-acme", entry.ProviderID)
	})
}
