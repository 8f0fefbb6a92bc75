// Package metrics exposes the WAF's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts inspected requests by final action.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waf_requests_total",
		Help: "Requests processed by the inspection pipeline, by action taken.",
	}, []string{"action"})

	// LogWriteFailures counts attack-log rows lost to write errors. The
	// request still gets a response; this counter is the only trace.
	LogWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waf_log_write_failures_total",
		Help: "Attack log writes that failed.",
	})

	// UpstreamErrors counts transport failures reaching the origin.
	UpstreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waf_upstream_errors_total",
		Help: "Upstream requests that failed with a transport error.",
	})

	// BlockedIPRejections counts requests rejected by the IP blocklist
	// before inspection.
	BlockedIPRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waf_blocked_ip_rejections_total",
		Help: "Requests rejected because the client IP was blocklisted.",
	})
)
