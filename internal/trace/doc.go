// Package trace holds the result model of a monitored run.
//
// A [Trace] is an ordered collection of [Entry] values, each either a
// filesystem [Sample] or a driver [Event], plus an optional title. Entries are
// appended in arrival order while the run is in progress and sorted by
// timestamp exactly once, when the trace is finalized:
//
//	tr := trace.New(runID)
//	tr.SetTitle("Large Write Transaction (S.00)")
//	tr.AddEvent(trace.Event{Timestamp: time.Now(), Label: "Writing 100 rows"})
//	tr.AddSample(sample)
//	artifacts, err := tr.Persist("results/results_scenario_0")
//
// # Artifacts
//
// [Trace.Persist] writes two files next to each other:
//   - base.csv: a delimited table with one row per entry
//   - base.json: a snapshot of the whole trace, reloadable with [LoadSnapshot]
//
// Both are written to a temporary file first and renamed into place, so a
// failed write never leaves a partial artifact behind.
package trace
