/*
Package httpserver hosts the guardian recovery API over HTTP.

It wires the request handlers from api/recoveryhandler into a chi router,
adds health and drain endpoints for load balancer integration, and runs a
separate Prometheus metrics listener. Request logging uses the slog
middleware on every route.

# Endpoints

The recovery API is mounted under /api (see api/recoveryhandler for the
full route list). The server itself adds:

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready
  - /debug - pprof profiler, when enabled

# Lifecycle

RunInBackground starts the API and metrics listeners in goroutines.
Shutdown stops both with the configured graceful shutdown timeout.
Draining flips the readiness probe first and waits out DrainDuration so
load balancers stop routing before the listener goes away.

# Example Usage

	handler, err := recoveryhandler.New(recoveryhandler.Config{
		Manager:        manager,
		StorageFactory: storageFactory,
		Log:            logger,
	})
	if err != nil {
		log.Fatalf("Failed to create handler: %v", err)
	}

	server, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}, handler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
