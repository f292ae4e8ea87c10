package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsIntRejectsFractions(t *testing.T) {
	if _, err := asInt(1.5); err == nil {
		t.Error("asInt(1.5) error = nil, want error")
	}
	if _, err := asInt([]int{1}); err == nil {
		t.Error("asInt([]int) error = nil, want error")
	}
}

func TestAsByteSize(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{4096, 4096},
		{"4096", 4096},
		{"1MB", 1_000_000},
		{"1 mb", 1_000_000},
		{"4KiB", 4096},
		{"64kib", 65536},
		{"0.5KB", 500},
		{"512b", 512},
		{nil, 0},
	}
	for _, tt := range tests {
		got, err := asByteSize(tt.input)
		if err != nil {
			t.Errorf("asByteSize(%v) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("asByteSize(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}

	for _, bad := range []interface{}{"MB", "1.5B", "10GiB", "ten"} {
		if _, err := asByteSize(bad); err == nil {
			t.Errorf("asByteSize(%v) error = nil, want error", bad)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{0.2, 200 * time.Millisecond},
		{"0.4", 400 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"scenario":      12,
		"catalog":       " extra.yaml ",
		"row_size":      "2KiB",
		"interval":      "50ms",
		"manual_prompt": true,
		"html_report":   "true",
		"thresholds":    "tmp:max == 0",
		"tracing": map[string]interface{}{
			"Endpoint":    "collector:4317",
			"sample-rate": "0.25",
		},
		"archive": map[interface{}]interface{}{
			"bucket":     "walwatch-results",
			"path_style": "true",
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Scenario == nil || *cfg.Scenario != 12 {
		t.Errorf("Scenario = %v, want 12", cfg.Scenario)
	}
	if cfg.CatalogFile != "extra.yaml" {
		t.Errorf("CatalogFile = %q, want extra.yaml", cfg.CatalogFile)
	}
	if cfg.RowSize != 2048 {
		t.Errorf("RowSize = %d, want 2048", cfg.RowSize)
	}
	if cfg.Interval != 50*time.Millisecond {
		t.Errorf("Interval = %v, want 50ms", cfg.Interval)
	}
	if !cfg.ManualPrompt {
		t.Error("ManualPrompt = false, want true")
	}
	if !cfg.HTMLReport {
		t.Error("HTMLReport = false, want true")
	}
	if len(cfg.Thresholds) != 1 || cfg.Thresholds[0] != "tmp:max == 0" {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc kept", cfg.Tracing.Protocol)
	}
	if cfg.Archive.Bucket != "walwatch-results" || !cfg.Archive.PathStyle {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Rows != DefaultRows {
		t.Errorf("Rows = %d, want default %d", cfg.Rows, DefaultRows)
	}
}

func TestApplyConfigSettingsErrors(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"rows":      {"rows": "many"},
		"interval":  {"interval": "soon"},
		"dashboard": {"dashboard": "maybe"},
		"tracing":   {"tracing": "collector"},
		"archive":   {"archive": []string{"x"}},
	}
	for name, settings := range cases {
		t.Run(name, func(t *testing.T) {
			if err := applyConfigSettings(Default(), settings); err == nil {
				t.Fatalf("applyConfigSettings(%v) error = nil", settings)
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"-s", "3",
		"--list",
		"--write-rate=2.5",
		"--settle-after=0s",
		"--threshold=wal:max < 1GB",
		"--threshold=db:last >= 4KB",
		"--tracing-endpoint= http://collector:4318 ",
		"--archive-dir=/srv/archive",
		"-q",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Scenario == nil || *cfg.Scenario != 3 {
		t.Errorf("Scenario = %v, want 3", cfg.Scenario)
	}
	if !cfg.List || !cfg.Quiet {
		t.Errorf("List = %v, Quiet = %v, want both true", cfg.List, cfg.Quiet)
	}
	if cfg.WriteRate != 2.5 {
		t.Errorf("WriteRate = %v, want 2.5", cfg.WriteRate)
	}
	if cfg.SettleAfter != 0 {
		t.Errorf("SettleAfter = %v, want 0", cfg.SettleAfter)
	}
	if cfg.SettleBefore != DefaultSettleBefore {
		t.Errorf("SettleBefore = %v, want untouched default", cfg.SettleBefore)
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %v, want 2 entries", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "http://collector:4318" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Archive.Dir != "/srv/archive" {
		t.Errorf("Archive.Dir = %q", cfg.Archive.Dir)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--scenario=20",
		"--db-file=/tmp/x.db",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scenario == nil || *cfg.Scenario != 20 {
		t.Errorf("Scenario = %v, want 20", cfg.Scenario)
	}
	if cfg.DBFile != "/tmp/x.db" {
		t.Errorf("DBFile = %q, want /tmp/x.db", cfg.DBFile)
	}
}
