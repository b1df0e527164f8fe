package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	t.Run("parses valid request", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"ping","jsonrpc":"2.0"}`))
		require.NoError(t, err)
		assert.Equal(t, "ping", req.Method)
	})

	t.Run("defaults jsonrpc version", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"ping"}`))
		require.NoError(t, err)
		assert.Equal(t, "2.0", req.JSONRPC)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := router.ParseRequest([]byte(`{nope`))
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, ParseError, rpcErr.Code)
	})

	t.Run("rejects missing id or method", func(t *testing.T) {
		for _, body := range []string{`{"method":"m"}`, `{"id":"1"}`} {
			_, err := router.ParseRequest([]byte(body))
			var rpcErr *RPCError
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, InvalidRequest, rpcErr.Code)
		}
	})
}

func TestRPCRouter_RouteRequest(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("echo", func(_ context.Context, params json.RawMessage) (interface{}, error) {
		return string(params), nil
	}))
	require.NoError(t, router.RegisterMethod("fail", func(_ context.Context, _ json.RawMessage) (interface{}, error) {
		return nil, errors.New("boom")
	}))
	require.NoError(t, router.RegisterMethod("typedFail", func(_ context.Context, _ json.RawMessage) (interface{}, error) {
		return nil, &RPCError{Code: InvalidParams, Message: "bad"}
	}))

	t.Run("routes to handler", func(t *testing.T) {
		resp := router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "echo", Params: json.RawMessage(`{"a":1}`)})
		assert.Nil(t, resp.Error)
		assert.Equal(t, `{"a":1}`, resp.Result)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "nope"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})

	t.Run("plain handler errors map to internal error", func(t *testing.T) {
		resp := router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "fail"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InternalError, resp.Error.Code)
		assert.Equal(t, "boom", resp.Error.Message)
	})

	t.Run("typed RPC errors pass through", func(t *testing.T) {
		resp := router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "typedFail"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		assert.Error(t, router.RegisterMethod("nil", nil))
	})

	t.Run("has method", func(t *testing.T) {
		assert.True(t, router.HasMethod("echo"))
		assert.False(t, router.HasMethod("missing"))
	})
}
