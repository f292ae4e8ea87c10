package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/walwatch/internal/trace"
)

// Exporter publishes the live sizes as prometheus metrics. It is a monitor
// observer and keeps its own registry.
type Exporter struct {
	registry     *prometheus.Registry
	sizes        *prometheus.GaugeVec
	events       prometheus.Counter
	sampleErrors prometheus.Counter
	samples      prometheus.Counter
}

// NewExporter creates an exporter with a fresh registry.
func NewExporter() *Exporter {
	sizes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "walwatch_file_size_bytes",
		Help: "Latest sampled size of a watched path.",
	}, []string{"file"})
	events := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walwatch_events_total",
		Help: "Driver events received by the monitor.",
	})
	sampleErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walwatch_sample_errors_total",
		Help: "Samples that failed and were skipped.",
	})
	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walwatch_samples_total",
		Help: "Samples recorded by the monitor.",
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(sizes, events, sampleErrors, samples)

	return &Exporter{
		registry:     reg,
		sizes:        sizes,
		events:       events,
		sampleErrors: sampleErrors,
		samples:      samples,
	}
}

func (e *Exporter) ObserveSample(s trace.Sample) {
	for _, series := range AllSeries {
		e.sizes.WithLabelValues(string(series)).Set(float64(series.Value(s)))
	}
	e.samples.Inc()
}

func (e *Exporter) ObserveEvent(trace.Event) {
	e.events.Inc()
}

func (e *Exporter) ObserveSampleError(error) {
	e.sampleErrors.Inc()
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
