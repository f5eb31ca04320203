// Package client provides the `freaq` command-line client.
//
// The CLI talks to the freaq HTTP API to publish and tail workspace events
// and to drive review sessions from a terminal. It is primarily intended for
// developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it reads
// FREAQ_HTTP and defaults to http://127.0.0.1:8080.
//
// Usage
//
//	freaq events publish --topic project.lifecycle --resource proj-1 --data '{"op":"created"}'
//	freaq events tail --topics project.lifecycle:proj-1 --last-event-id project.lifecycle:proj-1:4
//
//	freaq reviews start --resource doc-1/sec-2
//	freaq reviews cancel --session SESSION_ID --reason author_cancelled
//	freaq reviews retry --session SESSION_ID
//	freaq reviews queue
//
//	freaq telemetry list --limit 50 --reverse
package client
