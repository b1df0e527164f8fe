package capability

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCompiler(onDropped func(resource, scope string)) *Compiler {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return NewCompiler(logger, onDropped)
}

func testRequest() Request {
	return Request{
		HostRPCURL: "http://127.0.0.1:8420",
		TenantID:   "tenant-1",
		ProviderID: "demo-acme",
	}
}

func TestCompiler_Compile(t *testing.T) {
	t.Run("storage permission compiles to one storage binding", func(t *testing.T) {
		bindings, err := testCompiler(nil).Compile([]string{"storage::isolated"}, testRequest())
		require.NoError(t, err)
		require.Len(t, bindings, 1)

		b := bindings[0]
		assert.Equal(t, "storage", b.Name)
		assert.Equal(t, StorageBindingModule, b.Module)
		assert.Equal(t, []Param{
			{Name: "hostUrl", Value: "http://127.0.0.1:8420"},
			{Name: "rpcPath", Value: StorageRPCPath},
			{Name: "providerId", Value: "demo-acme"},
			{Name: "tenantId", Value: "tenant-1"},
		}, b.Params)
	})

	t.Run("log permission compiles to one log binding", func(t *testing.T) {
		bindings, err := testCompiler(nil).Compile([]string{"log::attach"}, testRequest())
		require.NoError(t, err)
		require.Len(t, bindings, 1)

		b := bindings[0]
		assert.Equal(t, "log", b.Name)
		assert.Equal(t, LogBindingModule, b.Module)
		assert.Equal(t, []Param{
			{Name: "hostUrl", Value: "http://127.0.0.1:8420"},
			{Name: "rpcPath", Value: LogRPCPath},
			{Name: "tenantId", Value: "tenant-1"},
		}, b.Params)
	})

	t.Run("stream id is appended when scoped to a stream", func(t *testing.T) {
		req := testRequest()
		streamID := int64(42)
		req.StreamID = &streamID

		bindings, err := testCompiler(nil).Compile([]string{"log::attach"}, req)
		require.NoError(t, err)
		require.Len(t, bindings, 1)
		last := bindings[0].Params[len(bindings[0].Params)-1]
		assert.Equal(t, Param{Name: "streamId", Value: "42"}, last)
	})

	t.Run("duplicate permissions yield one binding", func(t *testing.T) {
		bindings, err := testCompiler(nil).Compile(
			[]string{"storage::isolated", "storage::isolated"}, testRequest())
		require.NoError(t, err)
		assert.Len(t, bindings, 1)
	})

	t.Run("well-formed unrecognized permission compiles to zero bindings", func(t *testing.T) {
		var droppedResource, droppedScope string
		compiler := testCompiler(func(resource, scope string) {
			droppedResource, droppedScope = resource, scope
		})

		bindings, err := compiler.Compile([]string{"network::full"}, testRequest())
		require.NoError(t, err)
		assert.Empty(t, bindings)
		assert.Equal(t, "network", droppedResource)
		assert.Equal(t, "full", droppedScope)
	})

	t.Run("malformed permission fails the whole compile", func(t *testing.T) {
		_, err := testCompiler(nil).Compile(
			[]string{"storage::isolated", "storage"}, testRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed")
	})

	t.Run("mixed grant compiles storage and log", func(t *testing.T) {
		bindings, err := testCompiler(nil).Compile(
			[]string{"storage::isolated", "log::attach", "network::full"}, testRequest())
		require.NoError(t, err)
		require.Len(t, bindings, 2)
		assert.Equal(t, "storage", bindings[0].Name)
		assert.Equal(t, "log", bindings[1].Name)
	})
}
