package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePluginServer struct {
	port int
	err  error

	gotTenant   string
	gotProvider string
	gotStream   *int64
}

func (f *fakePluginServer) GetOrServe(_ context.Context, tenantID, providerID string, _ map[string]any, streamID *int64) (int, error) {
	f.gotTenant = tenantID
	f.gotProvider = providerID
	f.gotStream = streamID
	return f.port, f.err
}

func testServer(t *testing.T, ps PluginServer) *Server {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	server, err := NewServer(Config{
		Port:         8420,
		Store:        testStore(t),
		PluginServer: ps,
		Logger:       logger,
	})
	require.NoError(t, err)
	return server
}

func callRPC(t *testing.T, s *Server, method string, params any) *RPCResponse {
	t.Helper()

	rawParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{ID: "1", Method: method, Params: rawParams, JSONRPC: "2.0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestServer_StorageMethods(t *testing.T) {
	server := testServer(t, nil)

	t.Run("get before set returns null result", func(t *testing.T) {
		resp := callRPC(t, server, MethodGetIsolatedStorage, map[string]any{
			"tenantId": "t1", "providerId": "p1",
		})
		assert.Nil(t, resp.Error)
		assert.Nil(t, resp.Result)
	})

	t.Run("set then get round trips through RPC", func(t *testing.T) {
		resp := callRPC(t, server, MethodSetIsolatedStorage, map[string]any{
			"tenantId": "t1", "providerId": "p1", "data": map[string]any{"count": 3},
		})
		require.Nil(t, resp.Error)

		resp = callRPC(t, server, MethodGetIsolatedStorage, map[string]any{
			"tenantId": "t1", "providerId": "p1",
		})
		require.Nil(t, resp.Error)

		result, err := json.Marshal(resp.Result)
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":3}`, string(result))
	})

	t.Run("delete then get returns null again", func(t *testing.T) {
		resp := callRPC(t, server, MethodDeleteIsolatedStorage, map[string]any{
			"tenantId": "t1", "providerId": "p1",
		})
		require.Nil(t, resp.Error)

		resp = callRPC(t, server, MethodGetIsolatedStorage, map[string]any{
			"tenantId": "t1", "providerId": "p1",
		})
		require.Nil(t, resp.Error)
		assert.Nil(t, resp.Result)
	})

	t.Run("missing params are rejected", func(t *testing.T) {
		resp := callRPC(t, server, MethodSetIsolatedStorage, map[string]any{"tenantId": "t1"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})
}

func TestServer_LogAttachment(t *testing.T) {
	server := testServer(t, nil)

	t.Run("records an attachment", func(t *testing.T) {
		resp := callRPC(t, server, MethodLogAttachment, map[string]any{
			"tenantId": "t1",
			"streamId": 12,
			"title":    "Swap executed",
			"url":      "https://example.com/tx/123",
			"data":     map[string]any{"amount": "5"},
		})
		require.Nil(t, resp.Error)

		result := resp.Result.(map[string]interface{})
		assert.NotEmpty(t, result["id"])

		attachments, err := server.store.ListAttachments("t1", 10)
		require.NoError(t, err)
		require.Len(t, attachments, 1)
		assert.Equal(t, VisibilityExternal, attachments[0].Visibility)
		require.NotNil(t, attachments[0].StreamID)
		assert.Equal(t, int64(12), *attachments[0].StreamID)
	})

	t.Run("requires tenantId, title and url", func(t *testing.T) {
		resp := callRPC(t, server, MethodLogAttachment, map[string]any{"tenantId": "t1"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})
}

func TestServer_GetOrServePlugin(t *testing.T) {
	t.Run("returns port from the pool", func(t *testing.T) {
		fake := &fakePluginServer{port: 9312}
		server := testServer(t, fake)

		resp := callRPC(t, server, MethodGetOrServePlugin, map[string]any{
			"tenantId":   "t1",
			"providerId": "demo-acme",
			"config":     map[string]any{"pair": "SOL/USDC"},
			"streamId":   5,
		})
		require.Nil(t, resp.Error)

		result := resp.Result.(map[string]interface{})
		assert.Equal(t, float64(9312), result["port"])
		assert.Equal(t, "t1", fake.gotTenant)
		assert.Equal(t, "demo-acme", fake.gotProvider)
		require.NotNil(t, fake.gotStream)
		assert.Equal(t, int64(5), *fake.gotStream)
	})

	t.Run("errors when serving is not enabled", func(t *testing.T) {
		server := testServer(t, nil)
		resp := callRPC(t, server, MethodGetOrServePlugin, map[string]any{
			"tenantId": "t1", "providerId": "p",
		})
		require.NotNil(t, resp.Error)
	})
}

func TestServer_HandleRPC(t *testing.T) {
	server := testServer(t, nil)

	t.Run("rejects non-POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
		rec := httptest.NewRecorder()
		server.handleRPC(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("malformed body yields parse error response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte("{nope")))
		rec := httptest.NewRecorder()
		server.handleRPC(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp RPCResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ParseError, resp.Error.Code)
	})
}
