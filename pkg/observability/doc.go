// Package observability provides structured logging and Prometheus metrics
// for the shuttertag services.
//
// Logging uses the stdlib log/slog JSON handler behind a small wrapper that
// supports field chaining. Metrics cover the authentication pipeline, the
// permission cache, and invitation claiming.
package observability
