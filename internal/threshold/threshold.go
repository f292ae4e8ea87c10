// Package threshold evaluates size assertions such as "wal:max < 64MB" against
// the summary of a monitored run.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/walwatch/internal/metrics"
)

// Threshold represents a size assertion that can pass or fail.
type Threshold struct {
	Series    metrics.Series // db, shm, wal or tmp
	Aggregate string         // min, max, avg, p50, p90, p99 or last
	Operator  string         // <, <=, >, >= or ==
	Value     float64        // bytes
	Raw       string         // original string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Raw       string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Evaluator evaluates thresholds against run summaries.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Len returns the number of thresholds.
func (e *Evaluator) Len() int {
	if e == nil {
		return 0
	}
	return len(e.thresholds)
}

// Evaluate checks all thresholds against the provided summary.
func (e *Evaluator) Evaluate(summary metrics.Summary) []Result {
	if e == nil || len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, summary))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}

func evaluateOne(t Threshold, summary metrics.Summary) Result {
	actual, err := extractValue(t, summary)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.0f %s %.0f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var pattern = regexp.MustCompile(`^([a-z]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)\s*([a-zA-Z]*)$`)

var units = map[string]float64{
	"":   1,
	"b":  1,
	"kb": 1e3,
	"mb": 1e6,
	"gb": 1e9,
}

// Parse parses a threshold string.
// Supported formats:
// - "wal:max < 64MB"      (peak WAL size)
// - "db:last <= 500000"   (final database size in bytes)
// - "tmp:p99 < 1GB"       (temp spill, 99th percentile)
// Units are decimal: KB is 1000 bytes.
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: series:aggregate operator value, e.g., 'wal:max < 64MB')", s)
	}

	seriesName, aggregate, operator, valueStr, unit := matches[1], matches[2], matches[3], matches[4], matches[5]

	series, err := metrics.ParseSeries(seriesName)
	if err != nil {
		return Threshold{}, fmt.Errorf("unsupported series: %q (supported: db, shm, wal, tmp)", seriesName)
	}
	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: min, max, avg, p50, p90, p99, last)", aggregate)
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}
	scale, ok := units[strings.ToLower(unit)]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported unit: %q (supported: B, KB, MB, GB)", unit)
	}

	return Threshold{
		Series:    series,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value * scale,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func isValidAggregate(aggregate string) bool {
	switch aggregate {
	case "min", "max", "avg", "p50", "p90", "p99", "last":
		return true
	}
	return false
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	}
	return false
}

func extractValue(t Threshold, summary metrics.Summary) (float64, error) {
	stats, ok := summary.Series[t.Series]
	if !ok {
		return 0, fmt.Errorf("no samples for series %s", t.Series)
	}
	switch t.Aggregate {
	case "min":
		return float64(stats.Min), nil
	case "max":
		return float64(stats.Max), nil
	case "avg":
		return float64(stats.Mean), nil
	case "p50":
		return float64(stats.P50), nil
	case "p90":
		return float64(stats.P90), nil
	case "p99":
		return float64(stats.P99), nil
	case "last":
		return float64(stats.Last), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q", t.Aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
