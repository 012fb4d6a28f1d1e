// Package instrumentation provides OpenTelemetry metrics and tracing for the
// playground: flow transition counters, storage operation timings, identity
// provider call metrics, and HTTP request instruments.
//
// When instrumentation is disabled, no-op providers are used so the hot path
// carries no observability overhead. Actual exporters (Prometheus, OTLP) are
// wired by the embedding application through the provider accessors.
package instrumentation
