package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("registers without panicking", func(t *testing.T) {
		m := New()
		assert.NotNil(t, m)

		m.SandboxSpawnsTotal.WithLabelValues("demo-acme", "ok").Inc()
		m.SandboxReuseHitsTotal.Inc()
		m.SandboxesActive.Set(3)
		m.PermissionsDroppedTotal.WithLabelValues("network", "full").Inc()
	})

	t.Run("handler exposes metrics", func(t *testing.T) {
		m := New()
		m.CatalogScansTotal.Inc()

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "catalog_scans_total")
	})
}
