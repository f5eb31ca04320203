// Package runtime wires the event broker, the review coordinator, and the
// telemetry journal into a single-node instance. It exposes Open/Close and a
// basic health check.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	res, _ := rt.Reviews().StartReview("doc-1/sec-2")
package runtime
