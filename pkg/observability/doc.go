// Package observability provides the service's structured logging,
// Prometheus metrics and health probes.
//
// Logging is JSON via log/slog; components derive child loggers with
// WithField/WithFields. Metrics cover HTTP traffic, authorization decisions,
// cache behavior, token operations and database pool state; a nil *Metrics
// disables all instrumentation, which tests rely on. Health checks treat
// postgres as required and redis as optional (its loss degrades rather than
// fails readiness).
package observability
