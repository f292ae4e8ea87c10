// Package scenario defines the workload catalog and runs scenarios through
// the driver.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// ErrUnknownScenario is returned by Get for an id not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

// Op names a step operation.
type Op string

const (
	OpWrite             Op = "write"
	OpDelete            Op = "delete"
	OpCheckpoint        Op = "checkpoint"
	OpVacuum            Op = "vacuum"
	OpIncrementalVacuum Op = "incremental_vacuum"
	OpPageUsage         Op = "page_usage"
	OpAutoCheckpoint    Op = "autocheckpoint"
	OpVacuumUntilEmpty  Op = "vacuum_until_empty"
	OpVacuumInSteps     Op = "vacuum_in_steps"
)

// DefaultMaxIterations bounds vacuum_until_empty when the step sets none.
const DefaultMaxIterations = 1000

// Step is one operation of a scenario.
type Step struct {
	Op            Op     `yaml:"op"`
	Rows          int    `yaml:"rows,omitempty"` // write: 0 means the configured row count
	From          int    `yaml:"from,omitempty"` // delete: negative counts back from the row count
	To            *int   `yaml:"to,omitempty"`   // delete: nil means the row count
	PerRowCommit  bool   `yaml:"per_row_commit,omitempty"`
	Mode          string `yaml:"mode,omitempty"`       // checkpoint: passive or truncate
	Pages         int    `yaml:"pages,omitempty"`      // incremental vacuum size, step size or autocheckpoint threshold
	LogResult     bool   `yaml:"log_result,omitempty"` // emit the checkpoint frame counts
	Checkpoint    string `yaml:"checkpoint,omitempty"` // vacuum loops: checkpoint mode run after every round
	MaxIterations int    `yaml:"max_iterations,omitempty"`
}

// Scenario is a titled sequence of steps.
type Scenario struct {
	ID    int    `yaml:"id"`
	Title string `yaml:"title"`
	Steps []Step `yaml:"steps"`
}

// Catalog indexes scenarios by id.
type Catalog struct {
	scenarios map[int]Scenario
}

type document struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load parses a YAML catalog and validates it.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse scenario catalog: %w", err)
	}

	c := &Catalog{scenarios: make(map[int]Scenario, len(doc.Scenarios))}
	var issues []string
	for _, sc := range doc.Scenarios {
		if _, dup := c.scenarios[sc.ID]; dup {
			issues = append(issues, fmt.Sprintf("scenario %d: duplicate id", sc.ID))
			continue
		}
		c.scenarios[sc.ID] = sc
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("invalid scenario catalog: %s", strings.Join(issues, "; "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Builtin returns the embedded catalog.
func Builtin() (*Catalog, error) {
	return Load(bytes.NewReader(builtinCatalog))
}

// Merge returns a catalog holding c's scenarios overridden by other's.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{scenarios: make(map[int]Scenario, len(c.scenarios))}
	for id, sc := range c.scenarios {
		out.scenarios[id] = sc
	}
	if other != nil {
		for id, sc := range other.scenarios {
			out.scenarios[id] = sc
		}
	}
	return out
}

// Get returns the scenario with id.
func (c *Catalog) Get(id int) (Scenario, error) {
	sc, ok := c.scenarios[id]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %d", ErrUnknownScenario, id)
	}
	return sc, nil
}

// IDs returns every scenario id in ascending order.
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.scenarios))
	for id := range c.scenarios {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of scenarios.
func (c *Catalog) Len() int {
	return len(c.scenarios)
}

// Validate checks every scenario for known operations and sane parameters.
func (c *Catalog) Validate() error {
	var issues []string
	for _, id := range c.IDs() {
		sc := c.scenarios[id]
		if id < 0 {
			issues = append(issues, fmt.Sprintf("scenario %d: id must be >= 0", id))
		}
		if strings.TrimSpace(sc.Title) == "" {
			issues = append(issues, fmt.Sprintf("scenario %d: title is required", id))
		}
		if len(sc.Steps) == 0 {
			issues = append(issues, fmt.Sprintf("scenario %d: at least one step is required", id))
		}
		for i, step := range sc.Steps {
			for _, issue := range validateStep(step) {
				issues = append(issues, fmt.Sprintf("scenario %d: steps[%d]: %s", id, i, issue))
			}
		}
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid scenario catalog: %s", strings.Join(issues, "; "))
	}
	return nil
}

func validateStep(s Step) []string {
	var issues []string
	checkMode := func(field, mode string, required bool) {
		switch strings.ToLower(mode) {
		case "passive", "truncate":
		case "":
			if required {
				issues = append(issues, field+" is required")
			}
		default:
			issues = append(issues, fmt.Sprintf("%s %q must be passive or truncate", field, mode))
		}
	}

	switch s.Op {
	case OpWrite:
		if s.Rows < 0 {
			issues = append(issues, "rows must be >= 0")
		}
	case OpDelete:
		if s.To != nil && s.From >= 0 && *s.To >= 0 && *s.To < s.From {
			issues = append(issues, fmt.Sprintf("delete range [%d, %d) is inverted", s.From, *s.To))
		}
	case OpCheckpoint:
		checkMode("mode", s.Mode, true)
	case OpVacuum, OpPageUsage:
	case OpIncrementalVacuum, OpAutoCheckpoint:
		if s.Pages < 0 {
			issues = append(issues, "pages must be >= 0")
		}
	case OpVacuumUntilEmpty, OpVacuumInSteps:
		if s.Pages <= 0 {
			issues = append(issues, "pages must be > 0")
		}
		if s.MaxIterations < 0 {
			issues = append(issues, "max_iterations must be >= 0")
		}
		checkMode("checkpoint", s.Checkpoint, false)
	case "":
		issues = append(issues, "op is required")
	default:
		issues = append(issues, fmt.Sprintf("unknown op %q", s.Op))
	}
	return issues
}
