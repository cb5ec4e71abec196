// Package prometheus exposes authcore metrics as a Prometheus collector.
//
// [NewCollector] reads the engine's snapshot on every scrape. Counters are
// named authcore_*_total and the single histogram is
// authcore_authenticate_latency_seconds. [Handler] serves a private
// registry holding only the collector.
//
// The collector never registers itself in the global registry and never
// mutates engine state.
package prometheus
