// Package prometheus exposes engine metrics through a client_golang
// Collector.
//
// [NewCollector] reads sessioncap.Engine.MetricsSnapshot on every scrape and
// emits one counter per engine counter plus the
// sessioncap_validate_latency_seconds histogram. [Handler] serves a private
// registry holding only that collector; callers that already run a registry
// use [Register] instead.
package prometheus
