// Package monitor samples the watched database paths on a fixed interval while
// a scenario runs, merges in the events the driver sends, and persists the
// resulting trace when stopped.
//
// # Basic Usage
//
//	tx, rx := events.New()
//	m := monitor.New(monitor.Options{
//		Sampler:    sampler.New(sampler.PathsFor(dbFile, tmpDir)),
//		Receiver:   rx,
//		OutputBase: "results/results_scenario_0",
//	})
//	if err := m.Start(); err != nil {
//		return err
//	}
//	_ = tx.Title("Write 100 MB (S.0)")
//	_ = tx.Event("Inserting rows")
//	...
//	err := m.StopAndWait()
//
// # Loop
//
// Each tick drains every pending message, takes one sample, sleeps for the
// interval and then checks the stop signal. A failed sample is logged and
// counted but never ends the loop. Once stopped the monitor drains the channel
// a final time, sorts the trace by timestamp and writes the CSV table and the
// JSON snapshot.
//
// # Observers
//
// An [Observer] sees every sample, event and sample error as it is recorded.
// The metrics collector and the prometheus exporter are observers; combine
// them with [Observers].
package monitor
