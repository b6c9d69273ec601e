// Package metrics exposes the service's Prometheus counters and serves them
// on a listener separate from the API port.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recovery_backend"

// Lifecycle counters incremented by the API handlers. They are package level
// so a process without a metrics listener still records them, and they are
// registered into every server created by New.
var (
	WalletsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallets_created_total",
		Help:      "Wallets created.",
	})
	RecoveriesInitiated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recoveries_initiated_total",
		Help:      "Recovery attempts opened.",
	})
	RecoverySignatures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_signatures_total",
		Help:      "Guardian approval signatures accepted.",
	})
	RecoveriesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recoveries_completed_total",
		Help:      "Recovery attempts that reached their signature threshold.",
	})
	RecoveriesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recoveries_expired_total",
		Help:      "Recovery attempts that outlived their deadline.",
	})
	SeedsReconstructed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seeds_reconstructed_total",
		Help:      "Master seeds reconstructed from guardian shares.",
	})
	SharesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ceremony_shares_submitted_total",
		Help:      "Decrypted shares accepted into reconstruction ceremonies.",
	})
	GuardiansRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guardians_revoked_total",
		Help:      "Guardians revoked by wallet owners.",
	})
	ProofsOfLife = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proofs_of_life_total",
		Help:      "Owner proof of life check-ins recorded.",
	})
	WalletSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_syncs_total",
		Help:      "Wallet replications to storage backends.",
	}, []string{"backend"})
	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Rejected guardian request signatures, including nonce replays.",
	})
	Checkpoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_checkpoints_total",
		Help:      "Audit root checkpoint submissions by outcome.",
	}, []string{"status"})
)

// MetricsServer serves a Prometheus registry over HTTP.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New builds a metrics server with the domain counters, the Go runtime and
// process collectors and a build info gauge registered. Each call gets its
// own registry, so multiple servers in one process do not collide.
func New(serviceName, listenAddr string) *MetricsServer {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		WalletsCreated,
		RecoveriesInitiated,
		RecoverySignatures,
		RecoveriesCompleted,
		RecoveriesExpired,
		SeedsReconstructed,
		SharesSubmitted,
		GuardiansRevoked,
		ProofsOfLife,
		WalletSyncs,
		AuthFailures,
		Checkpoints,
	)

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Always 1, labeled with the service name.",
		ConstLabels: prometheus.Labels{"service": serviceName},
	})
	buildInfo.Set(1)
	registry.MustRegister(buildInfo)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the scrape handler, mainly for tests.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

// ListenAndServe blocks serving the metrics endpoint until Shutdown is called
// or the listener fails.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
