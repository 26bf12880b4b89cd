// Package metrics declares the Prometheus collectors exported on /metrics:
// HTTP request counts and latency, live comment stream gauges and counters,
// and circuit breaker state.
package metrics
