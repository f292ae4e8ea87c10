package monitor

import "github.com/torosent/walwatch/internal/trace"

// Observer receives trace entries as the monitor records them. Calls happen on
// the monitor goroutine.
type Observer interface {
	ObserveSample(trace.Sample)
	ObserveEvent(trace.Event)
	ObserveSampleError(error)
}

// Observers fans out to every non-nil observer.
type Observers []Observer

func (o Observers) ObserveSample(s trace.Sample) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveSample(s)
		}
	}
}

func (o Observers) ObserveEvent(e trace.Event) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveEvent(e)
		}
	}
}

func (o Observers) ObserveSampleError(err error) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveSampleError(err)
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveSample(trace.Sample) {}
func (nopObserver) ObserveEvent(trace.Event)   {}
func (nopObserver) ObserveSampleError(error)   {}
