// Package workflow holds the order item workflow configuration and the
// authorization rules that decide which actions an actor may take.
//
// The configuration is plain data: departments map to ordered statuses, and
// each status lists the actions that leave it. A Config is immutable once
// loaded; callers obtain it from a Provider and keep the same snapshot for the
// whole request.
package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// Department is an organizational stage that owns an item.
type Department string

const (
	DeptSales      Department = "sales"
	DeptDesign     Department = "design"
	DeptPrepress   Department = "prepress"
	DeptProduction Department = "production"
	DeptOutsource  Department = "outsource"
	DeptDispatch   Department = "dispatch"
)

// Departments lists every known department in pipeline order.
var Departments = []Department{
	DeptSales, DeptDesign, DeptPrepress, DeptProduction, DeptOutsource, DeptDispatch,
}

// Valid reports whether d is a known department.
func (d Department) Valid() bool {
	return slices.Contains(Departments, d)
}

// Action is a configured transition out of a status.
type Action struct {
	ID               string     `yaml:"id" json:"id"`
	Label            string     `yaml:"label" json:"label"`
	TargetDepartment Department `yaml:"target_department,omitempty" json:"target_department,omitempty"`
	TargetStatus     string     `yaml:"target_status" json:"target_status"`
	// Resume sends the item back to the department it was in before the
	// approval hold. TargetDepartment is ignored.
	Resume bool `yaml:"resume,omitempty" json:"resume,omitempty"`
}

// StatusConfig is one status within a department.
type StatusConfig struct {
	Status       string   `yaml:"status" json:"status"`
	Label        string   `yaml:"label" json:"label"`
	ApprovalGate bool     `yaml:"approval_gate,omitempty" json:"approval_gate,omitempty"`
	Actions      []Action `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Config is the whole workflow.
type Config struct {
	InitialDepartment Department                    `yaml:"initial_department" json:"initial_department"`
	InitialStatus     string                        `yaml:"initial_status" json:"initial_status"`
	Departments       map[Department][]StatusConfig `yaml:"departments" json:"departments"`
}

//go:embed default_workflow.yaml
var defaultWorkflow []byte

// Default returns the built-in print-shop workflow.
func Default() (*Config, error) {
	return Parse(defaultWorkflow)
}

// MustDefault is Default for callers that cannot recover, such as tests.
func MustDefault() *Config {
	cfg, err := Default()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates a workflow file. An empty path loads the default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "read workflow config")
	}
	return Parse(data)
}

// Parse decodes and validates YAML workflow data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "parse workflow config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration is closed: every action leads to a
// status that exists, so no transition can produce an undefined state.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Departments) == 0 {
		add("no departments configured")
	}

	for _, dept := range c.sortedDepartments() {
		if !dept.Valid() {
			add("unknown department %q", dept)
			continue
		}
		seen := make(map[string]bool)
		for _, sc := range c.Departments[dept] {
			if sc.Status == "" {
				add("%s: status with empty name", dept)
				continue
			}
			if seen[sc.Status] {
				add("%s: duplicate status %q", dept, sc.Status)
			}
			seen[sc.Status] = true

			ids := make(map[string]bool)
			for _, a := range sc.Actions {
				where := fmt.Sprintf("%s/%s action %q", dept, sc.Status, a.ID)
				if a.ID == "" {
					add("%s/%s: action with empty id", dept, sc.Status)
					continue
				}
				if ids[a.ID] {
					add("%s: duplicate action id", where)
				}
				ids[a.ID] = true

				if a.TargetStatus == "" {
					add("%s: missing target status", where)
					continue
				}
				if a.Resume {
					for _, d := range Departments {
						if d == DeptSales || c.Departments[d] == nil {
							continue
						}
						if _, ok := c.FindStatus(d, a.TargetStatus); !ok {
							add("%s: resume status %q missing in %s", where, a.TargetStatus, d)
						}
					}
					continue
				}
				target := a.TargetDepartment
				if target == "" {
					target = dept
				}
				if _, ok := c.FindStatus(target, a.TargetStatus); !ok {
					add("%s: target %s/%s does not exist", where, target, a.TargetStatus)
				}
			}
		}
	}

	if _, ok := c.FindStatus(c.InitialDepartment, c.InitialStatus); !ok {
		add("initial state %s/%s does not exist", c.InitialDepartment, c.InitialStatus)
	}

	if len(problems) > 0 {
		return apperrors.Configuration("invalid workflow config: " + strings.Join(problems, "; "))
	}
	return nil
}

// FindStatus returns the status config for a (department, status) pair.
func (c *Config) FindStatus(dept Department, status string) (*StatusConfig, bool) {
	if c == nil {
		return nil, false
	}
	statuses := c.Departments[dept]
	for i := range statuses {
		if statuses[i].Status == status {
			return &statuses[i], true
		}
	}
	return nil, false
}

// FindAction returns the action with id configured for the pair.
func (c *Config) FindAction(dept Department, status, actionID string) (Action, bool) {
	sc, ok := c.FindStatus(dept, status)
	if !ok {
		return Action{}, false
	}
	for _, a := range sc.Actions {
		if a.ID == actionID {
			return a, true
		}
	}
	return Action{}, false
}

// IsTerminal reports whether the pair exists and has no outgoing actions.
func (c *Config) IsTerminal(dept Department, status string) bool {
	sc, ok := c.FindStatus(dept, status)
	return ok && len(sc.Actions) == 0
}

// IsHeld reports whether an item in the pair waits on sales or the customer.
// Entering a held state from a non-held one snapshots where the item came from.
func (c *Config) IsHeld(dept Department, status string) bool {
	if dept == DeptSales {
		return true
	}
	sc, ok := c.FindStatus(dept, status)
	return ok && sc.ApprovalGate
}

// StatusLabel returns the label for a pair, falling back to the raw status.
func (c *Config) StatusLabel(dept Department, status string) string {
	if sc, ok := c.FindStatus(dept, status); ok && sc.Label != "" {
		return sc.Label
	}
	return status
}

func (c *Config) sortedDepartments() []Department {
	depts := make([]Department, 0, len(c.Departments))
	for d := range c.Departments {
		depts = append(depts, d)
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i] < depts[j] })
	return depts
}
