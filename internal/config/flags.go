package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/walwatch/internal/engine"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "walwatch",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Selection
	flags.IntP("scenario", "s", 0, "Scenario id to run (all scenarios when omitted)")
	flags.Bool("list", false, "List the scenario catalog and exit")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("catalog", "", "Additional scenario catalog (YAML) merged over the built-in one")

	// Paths
	flags.String("result-dir", DefaultResultDir, "Directory for traces and versions.txt")
	flags.String("db-file", DefaultDBFile, "Database file driven by the scenarios")
	flags.String("tmp-dir", DefaultTmpDir, "Temp spill directory (exported as SQLITE_TMPDIR)")

	// Workload
	flags.Int("rows", DefaultRows, "Number of rows written by full-table steps")
	flags.Int("row-size", engine.DefaultRowBytes, "Payload bytes per row")
	flags.Int("page-size", engine.DefaultPageSize, "Database page size in bytes")
	flags.Float64("write-rate", 0, "Row writes per second limit (0 means unlimited)")

	// Timing
	flags.DurationP("interval", "i", DefaultInterval, "Sampling interval")
	flags.Duration("settle-before", DefaultSettleBefore, "Pause before each step's event")
	flags.Duration("settle-after", DefaultSettleAfter, "Pause after each step's event")
	flags.Duration("grace", DefaultGrace, "Sampling time after the scenario finishes")
	flags.Bool("manual-prompt", false, "Wait for enter before every step")

	// Output
	flags.Bool("json-output", false, "Emit JSON formatted reports")
	flags.Bool("dashboard", false, "Show live terminal dashboard with file sizes")
	flags.Bool("html-report", false, "Write an HTML chart next to every trace")
	flags.String("plot", "", "Render HTML charts for a snapshot file or directory and exit")
	flags.BoolP("quiet", "q", false, "Suppress the progress line")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "Serve Prometheus gauges on this address (e.g. :9100)")
	flags.StringSlice("threshold", nil, "Size thresholds (repeatable, e.g. 'wal:max < 64MB')")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for step spans (disabled when empty)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1, "Fraction of runs traced (0 to 1)")

	// Archive
	flags.String("archive-bucket", "", "S3 bucket receiving result artifacts")
	flags.String("archive-prefix", "", "Object key prefix for archived artifacts")
	flags.String("archive-region", "", "S3 region")
	flags.String("archive-endpoint", "", "Custom S3 endpoint (e.g. MinIO)")
	flags.Bool("archive-path-style", false, "Use path-style S3 addressing")
	flags.String("archive-dir", "", "Local directory receiving result artifacts")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("scenario") {
		val, err := fs.GetInt("scenario")
		if err != nil {
			return err
		}
		cfg.Scenario = &val
	}
	if fs.Changed("list") {
		val, err := fs.GetBool("list")
		if err != nil {
			return err
		}
		cfg.List = val
	}
	if err := overrideString(fs, "catalog", &cfg.CatalogFile); err != nil {
		return err
	}
	if err := overrideString(fs, "result-dir", &cfg.ResultDir); err != nil {
		return err
	}
	if err := overrideString(fs, "db-file", &cfg.DBFile); err != nil {
		return err
	}
	if err := overrideString(fs, "tmp-dir", &cfg.TmpDir); err != nil {
		return err
	}
	if fs.Changed("rows") {
		val, err := fs.GetInt("rows")
		if err != nil {
			return err
		}
		cfg.Rows = val
	}
	if fs.Changed("row-size") {
		val, err := fs.GetInt("row-size")
		if err != nil {
			return err
		}
		cfg.RowSize = val
	}
	if fs.Changed("page-size") {
		val, err := fs.GetInt("page-size")
		if err != nil {
			return err
		}
		cfg.PageSize = val
	}
	if fs.Changed("write-rate") {
		val, err := fs.GetFloat64("write-rate")
		if err != nil {
			return err
		}
		cfg.WriteRate = val
	}
	if fs.Changed("interval") {
		val, err := fs.GetDuration("interval")
		if err != nil {
			return err
		}
		cfg.Interval = val
	}
	if fs.Changed("settle-before") {
		val, err := fs.GetDuration("settle-before")
		if err != nil {
			return err
		}
		cfg.SettleBefore = val
	}
	if fs.Changed("settle-after") {
		val, err := fs.GetDuration("settle-after")
		if err != nil {
			return err
		}
		cfg.SettleAfter = val
	}
	if fs.Changed("grace") {
		val, err := fs.GetDuration("grace")
		if err != nil {
			return err
		}
		cfg.Grace = val
	}
	if err := overrideBool(fs, "manual-prompt", &cfg.ManualPrompt); err != nil {
		return err
	}
	if err := overrideBool(fs, "json-output", &cfg.JSONOutput); err != nil {
		return err
	}
	if err := overrideBool(fs, "dashboard", &cfg.Dashboard); err != nil {
		return err
	}
	if err := overrideBool(fs, "html-report", &cfg.HTMLReport); err != nil {
		return err
	}
	if err := overrideString(fs, "plot", &cfg.Plot); err != nil {
		return err
	}
	if err := overrideBool(fs, "quiet", &cfg.Quiet); err != nil {
		return err
	}
	if err := overrideString(fs, "log-level", &cfg.LogLevel); err != nil {
		return err
	}
	if err := overrideString(fs, "metrics-addr", &cfg.MetricsAddr); err != nil {
		return err
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if err := overrideString(fs, "tracing-endpoint", &cfg.Tracing.Endpoint); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-protocol", &cfg.Tracing.Protocol); err != nil {
		return err
	}
	if err := overrideBool(fs, "tracing-insecure", &cfg.Tracing.Insecure); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-service-name", &cfg.Tracing.ServiceName); err != nil {
		return err
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	if err := overrideString(fs, "archive-bucket", &cfg.Archive.Bucket); err != nil {
		return err
	}
	if err := overrideString(fs, "archive-prefix", &cfg.Archive.Prefix); err != nil {
		return err
	}
	if err := overrideString(fs, "archive-region", &cfg.Archive.Region); err != nil {
		return err
	}
	if err := overrideString(fs, "archive-endpoint", &cfg.Archive.Endpoint); err != nil {
		return err
	}
	if err := overrideBool(fs, "archive-path-style", &cfg.Archive.PathStyle); err != nil {
		return err
	}
	return overrideString(fs, "archive-dir", &cfg.Archive.Dir)
}

func overrideString(fs *pflag.FlagSet, name string, dst *string) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(val)
	return nil
}

func overrideBool(fs *pflag.FlagSet, name string, dst *bool) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetBool(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}
