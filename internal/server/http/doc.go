// Package httpserver provides the REST gateway for the streaming coordination
// service: JSON endpoints for publishing and review control, SSE and
// WebSocket feeds for subscriptions and session streams.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
