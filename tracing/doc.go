// Package tracing provides a thin wrapper around OpenTelemetry so that the
// rest of the engine can start and finish spans without depending on the
// upstream API directly.  The orchestration machine opens one span per node
// and the backend client one span per dispatched step.
package tracing
