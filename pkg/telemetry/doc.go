// Package telemetry exposes the process's internal Prometheus metrics.
//
// Grounded on the teacher's pkg/metrics: package-level metric variables
// registered once in init(), a promhttp Handler for scraping, and a Timer
// helper for histogram observations. The catalog itself is new (admission
// outcomes, request latency, queue depth, retention sweep durations)
// since these replace the teacher's cluster/Raft/scheduler metrics with
// infractl's own domain.
package telemetry
