package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReuseKey(t *testing.T) {
	t.Run("deterministic for identical inputs", func(t *testing.T) {
		a, err := ReuseKey("demo-acme", map[string]any{"pair": "SOL/USDC", "interval": 60})
		require.NoError(t, err)
		b, err := ReuseKey("demo-acme", map[string]any{"interval": 60, "pair": "SOL/USDC"})
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("differs per provider", func(t *testing.T) {
		a, err := ReuseKey("demo-acme", map[string]any{"pair": "SOL/USDC"})
		require.NoError(t, err)
		b, err := ReuseKey("other-acme", map[string]any{"pair": "SOL/USDC"})
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("differs per config", func(t *testing.T) {
		a, err := ReuseKey("demo-acme", map[string]any{"pair": "SOL/USDC"})
		require.NoError(t, err)
		b, err := ReuseKey("demo-acme", map[string]any{"pair": "ETH/USDC"})
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("nil config is stable", func(t *testing.T) {
		a, err := ReuseKey("demo-acme", nil)
		require.NoError(t, err)
		b, err := ReuseKey("demo-acme", nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
