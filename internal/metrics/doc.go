// Package metrics aggregates the sampled file sizes of a monitored run.
//
// # Collector
//
// [Collector] observes the monitor and keeps, per series (db, shm, wal, tmp),
// an HDR histogram plus min, max, mean and last values:
//
//	collector := metrics.NewCollector()
//	m := monitor.New(monitor.Options{..., Observer: collector})
//	...
//	summary := collector.Summary()
//	walPeak := summary.Series[metrics.SeriesWAL].Max
//
// It also retains a bounded history of samples and recent events for the
// dashboard, and counts failed samples by [ErrorName].
//
// # Exporter
//
// [Exporter] mirrors the live sizes into prometheus gauges on its own
// registry. Serve [Exporter.Handler] to scrape a run while it is in progress.
package metrics
