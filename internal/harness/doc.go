// Package harness runs catalog scenarios end to end.
//
// For every scenario the harness starts a monitor on the database, its -shm
// and -wal companions and the temp directory, recreates the database, lets a
// driver execute the scenario steps, closes the connection, keeps sampling for
// a grace period and finally stops the monitor so the trace is persisted.
//
// # Basic Usage
//
//	h, err := harness.New(opts)
//	if err != nil {
//		return err
//	}
//	if err := h.Prepare(); err != nil {
//		return err
//	}
//	defer h.Close()
//	reports, err := h.RunAll(ctx, catalog.IDs())
//
// # Hooks
//
// OnRunStart receives the collector of the run that is about to start so a
// dashboard or progress line can follow it. OnRunEnd receives the finished
// [RunReport].
//
// # Errors
//
// A failing scenario never prevents the next one from running. [Harness.RunAll]
// joins the failures with errors.Join. A run whose thresholds fail reports
// [ErrThresholdsFailed].
package harness
