package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/streamvest/pluginhost/pkg/capability"
)

func testShimDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"storage-impl.js":    "export const storageImpl = 1",
		"log-impl.js":        "export const logImpl = 1",
		"storage-binding.js": "import impl from 'host-internal:storage-impl'",
		"log-binding.js":     "import impl from 'host-internal:log-impl'",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func testBundler(dir string) *StaticBundler {
	return &StaticBundler{
		Modules: map[string]string{
			filepath.Join(dir, "storage-impl.js"): "// bundled storage impl",
			filepath.Join(dir, "log-impl.js"):     "// bundled log impl",
		},
	}
}

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	dir := testShimDir(t)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return NewGenerator(testBundler(dir), dir, "2024-09-02", logger)
}

func testInput() Input {
	return Input{
		Port: 9200,
		Provider: Provider{
			ID:     "demo-acme",
			Source: "export default { fetch() { return new Response('ok') } }",
			Type:   TypeModule,
		},
		TenantID:   "tenant-1",
		HostRPCURL: "http://127.0.0.1:8420",
		Bindings: []capability.Binding{
			{
				Name:   "storage",
				Module: capability.StorageBindingModule,
				Params: []capability.Param{
					{Name: "hostUrl", Value: "http://127.0.0.1:8420"},
					{Name: "rpcPath", Value: capability.StorageRPCPath},
					{Name: "providerId", Value: "demo-acme"},
					{Name: "tenantId", Value: "tenant-1"},
				},
			},
		},
	}
}

func TestGenerator_Generate(t *testing.T) {
	gen := testGenerator(t)

	t.Run("produces a complete descriptor", func(t *testing.T) {
		out, err := gen.Generate(context.Background(), testInput())
		require.NoError(t, err)

		assert.Contains(t, out, `address = "127.0.0.1:9200"`)
		assert.Contains(t, out, `service = "plugin"`)
		// external alias so bindings can reach the host
		assert.Contains(t, out, `address = "127.0.0.1:8420"`)
		assert.Contains(t, out, `compatibilityDate = "2024-09-02"`)
		// plugin source embedded as an escaped literal
		assert.Contains(t, out, `esModule = "export default { fetch() { return new Response('ok') } }"`)
		// wrapped capability binding with its static params
		assert.Contains(t, out, `moduleName = "host-internal:storage-binding"`)
		assert.Contains(t, out, `name = "providerId"`)
		assert.Contains(t, out, `text = "demo-acme"`)
		// shared shim set regardless of wired bindings
		assert.Contains(t, out, "// bundled storage impl")
		assert.Contains(t, out, "// bundled log impl")
		assert.Contains(t, out, `name = "host-internal:log-binding"`)
	})

	t.Run("identical inputs produce byte-identical output", func(t *testing.T) {
		a, err := gen.Generate(context.Background(), testInput())
		require.NoError(t, err)
		b, err := gen.Generate(context.Background(), testInput())
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("script providers use serviceWorkerScript", func(t *testing.T) {
		in := testInput()
		in.Provider.Type = TypeScript
		out, err := gen.Generate(context.Background(), in)
		require.NoError(t, err)
		assert.Contains(t, out, "serviceWorkerScript = ")
		assert.NotContains(t, out, `name = "plugin.js"`)
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name    string
			mutate  func(*Input)
			wantErr error
		}{
			{"zero port", func(in *Input) { in.Port = 0 }, ErrInvalidPort},
			{"empty provider id", func(in *Input) { in.Provider.ID = "" }, ErrInvalidProvider},
			{"empty source", func(in *Input) { in.Provider.Source = "" }, ErrInvalidProvider},
			{"bad type", func(in *Input) { in.Provider.Type = "wasm" }, ErrInvalidProviderType},
			{"bad host url", func(in *Input) { in.HostRPCURL = "not a url" }, ErrInvalidHostRPCURL},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				in := testInput()
				tt.mutate(&in)
				_, err := gen.Generate(context.Background(), in)
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})

	t.Run("missing shim fails generation", func(t *testing.T) {
		dir := t.TempDir()
		logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
		gen := NewGenerator(&StaticBundler{Modules: map[string]string{}}, dir, "2024-09-02", logger)

		_, err := gen.Generate(context.Background(), testInput())
		assert.Error(t, err)
	})
}
