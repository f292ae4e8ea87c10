package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Without arguments every default applies and all scenarios run.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "scenario"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		cfg.Scenario = &val
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.CatalogFile, []string{"catalog"}},
		{&cfg.ResultDir, []string{"resultdir", "result_dir", "result-dir"}},
		{&cfg.DBFile, []string{"dbfile", "db_file", "db-file"}},
		{&cfg.TmpDir, []string{"tmpdir", "tmp_dir", "tmp-dir"}},
		{&cfg.LogLevel, []string{"loglevel", "log_level", "log-level"}},
		{&cfg.MetricsAddr, []string{"metricsaddr", "metrics_addr", "metrics-addr"}},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "rows"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		cfg.Rows = val
	}

	sizes := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.RowSize, []string{"rowsize", "row_size", "row-size"}},
		{&cfg.PageSize, []string{"pagesize", "page_size", "page-size"}},
	}
	for _, s := range sizes {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asByteSize(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "writerate", "write_rate", "write-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("writeRate: %w", err)
		}
		cfg.WriteRate = val
	}

	durations := []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Interval, []string{"interval"}},
		{&cfg.SettleBefore, []string{"settlebefore", "settle_before", "settle-before"}},
		{&cfg.SettleAfter, []string{"settleafter", "settle_after", "settle-after"}},
		{&cfg.Grace, []string{"grace"}},
	}
	for _, s := range durations {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = dur
		}
	}

	bools := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.ManualPrompt, []string{"manualprompt", "manual_prompt", "manual-prompt"}},
		{&cfg.JSONOutput, []string{"jsonoutput", "json_output", "json-output"}},
		{&cfg.Dashboard, []string{"dashboard"}},
		{&cfg.HTMLReport, []string{"htmlreport", "html_report", "html-report"}},
		{&cfg.Quiet, []string{"quiet"}},
	}
	for _, s := range bools {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracingConfig(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "archive"); ok {
		archive, err := parseArchiveConfig(raw)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		cfg.Archive = archive
	}

	return nil
}

// parseTracingConfig overlays the file's tracing section on the defaults in t.
func parseTracingConfig(value interface{}, t *TracingConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	return nil
}

func parseArchiveConfig(value interface{}) (ArchiveConfig, error) {
	if value == nil {
		return ArchiveConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return ArchiveConfig{}, err
	}
	var archive ArchiveConfig
	for key, dst := range map[string]*string{
		"bucket":   &archive.Bucket,
		"prefix":   &archive.Prefix,
		"region":   &archive.Region,
		"endpoint": &archive.Endpoint,
		"dir":      &archive.Dir,
	} {
		if raw, ok := lookupSetting(settings, key); ok {
			val, err := asString(raw)
			if err != nil {
				return ArchiveConfig{}, fmt.Errorf("%s: %w", key, err)
			}
			*dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "pathstyle", "path_style", "path-style"); ok {
		val, err := asBool(raw)
		if err != nil {
			return ArchiveConfig{}, fmt.Errorf("path_style: %w", err)
		}
		archive.PathStyle = val
	}
	return archive, nil
}
