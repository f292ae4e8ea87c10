package tracing

import (
	"strings"
	"testing"

	"github.com/torosent/walwatch/internal/config"
)

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOffSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		s, err := samplerFor(tt.rate)
		if err != nil {
			t.Fatalf("samplerFor(%g) error = %v", tt.rate, err)
		}
		if !strings.HasPrefix(s.Description(), tt.want) {
			t.Errorf("samplerFor(%g) = %s, want %s", tt.rate, s.Description(), tt.want)
		}
	}

	for _, bad := range []float64{-0.5, 1.5} {
		if _, err := samplerFor(bad); err == nil {
			t.Errorf("samplerFor(%g) error = nil, want error", bad)
		}
	}
}

func TestServiceName(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	if got := serviceName(config.TracingConfig{}); got != instrumentationName {
		t.Errorf("serviceName() = %q, want %q", got, instrumentationName)
	}
	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	if got := serviceName(config.TracingConfig{}); got != "from-env" {
		t.Errorf("serviceName() = %q, want from-env", got)
	}
	if got := serviceName(config.TracingConfig{ServiceName: "bench-box"}); got != "bench-box" {
		t.Errorf("serviceName() = %q, want bench-box", got)
	}
}
