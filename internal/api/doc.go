// Package api serves the live state of a run over HTTP and WebSocket.
//
// # Endpoints
//
//	GET /api/status   run state, worker counts, queue sizes
//	GET /api/workers  per-worker lifecycle status
//	GET /api/metrics  dispatch counts, latency and throughput
//	WS  /ws           status every second plus every run event
//
// # Basic Usage
//
//	srv := api.NewServer(":8080", coord, bus)
//	go func() {
//	    if err := srv.Start(ctx); err != nil {
//	        logger.Error("", "Status API failed: %v", err)
//	    }
//	}()
//
// Handler exposes the routes without listening, which is what tests use
// together with net/http/httptest.
package api
