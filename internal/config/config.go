package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/torosent/walwatch/internal/engine"
	"github.com/torosent/walwatch/internal/logging"
	"github.com/torosent/walwatch/internal/threshold"
)

// Defaults applied before the config file and flags.
const (
	DefaultResultDir    = "results"
	DefaultDBFile       = "data/test.db"
	DefaultTmpDir       = "data/tmp"
	DefaultRows         = 100
	DefaultInterval     = 200 * time.Millisecond
	DefaultSettleBefore = 3 * time.Second
	DefaultSettleAfter  = 400 * time.Millisecond
	DefaultGrace        = 3 * time.Second
	DefaultLogLevel     = "info"
)

type Config struct {
	Scenario     *int          `mapstructure:"scenario"`
	List         bool          `mapstructure:"-"`
	ConfigFile   string        `mapstructure:"-"`
	CatalogFile  string        `mapstructure:"catalog"`
	ResultDir    string        `mapstructure:"result_dir"`
	DBFile       string        `mapstructure:"db_file"`
	TmpDir       string        `mapstructure:"tmp_dir"`
	Rows         int           `mapstructure:"rows"`
	RowSize      int           `mapstructure:"row_size"`
	PageSize     int           `mapstructure:"page_size"`
	WriteRate    float64       `mapstructure:"write_rate"`
	Interval     time.Duration `mapstructure:"interval"`
	SettleBefore time.Duration `mapstructure:"settle_before"`
	SettleAfter  time.Duration `mapstructure:"settle_after"`
	Grace        time.Duration `mapstructure:"grace"`
	ManualPrompt bool          `mapstructure:"manual_prompt"`
	JSONOutput   bool          `mapstructure:"json_output"`
	Dashboard    bool          `mapstructure:"dashboard"`
	HTMLReport   bool          `mapstructure:"html_report"`
	Plot         string        `mapstructure:"-"`
	Quiet        bool          `mapstructure:"quiet"`
	LogLevel     string        `mapstructure:"log_level"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	Thresholds   []string      `mapstructure:"thresholds"`
	Tracing      TracingConfig `mapstructure:"tracing"`
	Archive      ArchiveConfig `mapstructure:"archive"`
}

// TracingConfig configures OTLP span export. An empty endpoint disables it.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// ArchiveConfig selects where result artifacts are copied after each run.
// Bucket selects S3; Dir selects a local directory; neither disables archiving.
type ArchiveConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Dir       string `mapstructure:"dir"`
}

// Enabled reports whether any archive destination is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" || a.Dir != ""
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		ResultDir:    DefaultResultDir,
		DBFile:       DefaultDBFile,
		TmpDir:       DefaultTmpDir,
		Rows:         DefaultRows,
		RowSize:      engine.DefaultRowBytes,
		PageSize:     engine.DefaultPageSize,
		Interval:     DefaultInterval,
		SettleBefore: DefaultSettleBefore,
		SettleAfter:  DefaultSettleAfter,
		Grace:        DefaultGrace,
		LogLevel:     DefaultLogLevel,
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1},
	}
}

// ValidationError collects every configuration problem found by Validate.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "invalid configuration"
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Scenario != nil && *c.Scenario < 0 {
		issues = append(issues, "scenario must be non-negative")
	}
	if strings.TrimSpace(c.ResultDir) == "" {
		issues = append(issues, "result-dir is required")
	}
	if strings.TrimSpace(c.DBFile) == "" {
		issues = append(issues, "db-file is required")
	}
	if strings.TrimSpace(c.TmpDir) == "" {
		issues = append(issues, "tmp-dir is required")
	}
	if c.Rows <= 0 {
		issues = append(issues, "rows must be greater than zero")
	}
	if c.RowSize <= 0 {
		issues = append(issues, "row-size must be greater than zero")
	}
	if c.PageSize < 512 || c.PageSize > 65536 || c.PageSize&(c.PageSize-1) != 0 {
		issues = append(issues, "page-size must be a power of two between 512 and 65536")
	}
	if c.WriteRate < 0 {
		issues = append(issues, "write-rate must be non-negative")
	}
	if c.Interval <= 0 {
		issues = append(issues, "interval must be greater than zero")
	}
	if c.SettleBefore < 0 {
		issues = append(issues, "settle-before must be non-negative")
	}
	if c.SettleAfter < 0 {
		issues = append(issues, "settle-after must be non-negative")
	}
	if c.Grace < 0 {
		issues = append(issues, "grace must be non-negative")
	}
	if c.Plot != "" && (c.Scenario != nil || c.List) {
		issues = append(issues, "plot cannot be combined with scenario or list")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard cannot be combined with json-output")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			issues = append(issues, fmt.Sprintf("metrics-addr: %v", err))
		}
	}
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}
	issues = append(issues, validateTracingConfig(c.Tracing)...)
	issues = append(issues, validateArchiveConfig(c.Archive)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample-rate must be between 0 and 1")
	}
	return issues
}

func validateArchiveConfig(a ArchiveConfig) []string {
	var issues []string
	if a.Bucket != "" && a.Dir != "" {
		issues = append(issues, "archive-bucket and archive-dir are mutually exclusive")
	}
	if a.Bucket == "" && (a.Region != "" || a.Endpoint != "" || a.PathStyle) {
		issues = append(issues, "archive-region, archive-endpoint and archive-path-style require archive-bucket")
	}
	if strings.HasPrefix(a.Prefix, "/") {
		issues = append(issues, "archive-prefix must be relative")
	}
	return issues
}
