/*
Package metrics exports routefs operation metrics to Prometheus.

The Collector implements types.MetricsCollector, so the filesystem reports to
it directly:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9100,
		Path:      "/metrics",
		Namespace: "routefs",
	}, logger)
	if err != nil {
		return err
	}
	fs := filesystem.New(filesystem.WithMetrics(collector))

Exported series:

	routefs_operations_total{operation,status}
	routefs_operation_duration_seconds{operation}
	routefs_operation_size_bytes{operation}
	routefs_errors_total{operation,code}
	routefs_open_handles

Start serves the registry over HTTP together with /health and
/debug/operations. A collector built from a disabled configuration accepts
every call and records nothing.
*/
package metrics
