// Package httpmw provides HTTP middleware for the node's listeners.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// panic recovery, request ID, client IP extraction, rate limiting,
// OTEL tracing, metrics, structured logging, and chi router.
//
// Each middleware is an independent function that can be tested,
// reordered, or removed individually. User-supplied data beyond the
// request line is intentionally excluded from logs: access keys and
// nonces travel in query strings, and neither may ever reach a log.
package httpmw
