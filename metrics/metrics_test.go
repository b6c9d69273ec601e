package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer_Scrape(t *testing.T) {
	m := New("recovery-backend", "127.0.0.1:0")

	WalletsCreated.Inc()
	WalletSyncs.WithLabelValues("mem-test").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := w.Body.String()
	assert.Contains(t, body, "recovery_backend_wallets_created_total")
	assert.Contains(t, body, `recovery_backend_wallet_syncs_total{backend="mem-test"}`)
	assert.Contains(t, body, `recovery_backend_build_info{service="recovery-backend"}`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsServer_IndependentRegistries(t *testing.T) {
	// Two servers in one process must not collide on registration.
	first := New("recovery-backend", "127.0.0.1:0")
	second := New("recovery-backend", "127.0.0.1:0")

	for _, m := range []*MetricsServer{first, second} {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		m.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Contains(t, w.Body.String(), "recovery_backend_recoveries_initiated_total")
	}
}
