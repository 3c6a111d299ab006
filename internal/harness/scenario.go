package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// Scenario defines a merge test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also seeds the run ids and
	// names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is an inline CUE document describing the target model.
	Model string `yaml:"model,omitempty"`

	// Models lists CUE files to unify into the target model.
	// Paths are relative to the scenario file location.
	Models []string `yaml:"models,omitempty"`

	// Target is the element path of the component being generated.
	// Empty means the whole project.
	Target string `yaml:"target,omitempty"`

	// TieBreak is "after" (default) or "before".
	TieBreak string `yaml:"tie_break,omitempty"`

	// MaxRequests overrides the engine's per-run request quota.
	MaxRequests int `yaml:"max_requests,omitempty"`

	// Steps are the generation requests, applied in order after any
	// requests declared in the CUE model.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the change log and the final tree.
	Assertions []Assertion `yaml:"assertions"`

	// Idempotent re-applies every request to the merged model and expects
	// nothing to change.
	Idempotent bool `yaml:"idempotent,omitempty"`

	// Permutations applies the requests in every order to a fresh model and
	// expects the same tree each time. Requests must not depend on each other.
	Permutations bool `yaml:"permutations,omitempty"`
}

// Step is one generation request.
type Step struct {
	Parent    string    `yaml:"parent,omitempty"`
	Feature   string    `yaml:"feature"`
	Value     StepValue `yaml:"value"`
	Remove    bool      `yaml:"remove,omitempty"`
	Priority  int64     `yaml:"priority,omitempty"`
	Before    string    `yaml:"before,omitempty"`
	Source    string    `yaml:"source,omitempty"`
	Generator string    `yaml:"generator,omitempty"`

	// Expect is the expected change status: accepted, suppressed, removed
	// or not_found. Empty means no check.
	Expect string `yaml:"expect,omitempty"`
}

// StepValue is either a text value or an element.
type StepValue struct {
	Text *string `yaml:"text,omitempty"`

	Kind      string              `yaml:"kind,omitempty"`
	Name      string              `yaml:"name,omitempty"`
	Predicate *string             `yaml:"predicate,omitempty"`
	Action    *string             `yaml:"action,omitempty"`
	Theorem   bool                `yaml:"theorem,omitempty"`
	Extended  bool                `yaml:"extended,omitempty"`
	Comment   string              `yaml:"comment,omitempty"`
	Features  []StepFeature       `yaml:"features,omitempty"`
	Refs      map[string][]string `yaml:"refs,omitempty"`
}

// StepFeature is a nested feature of an element value.
type StepFeature struct {
	Name   string      `yaml:"name"`
	Values []StepValue `yaml:"values"`
}

// Assertion validates the change log or the final tree.
type Assertion struct {
	// Type specifies the assertion type:
	// - "order": Names lists the values of Parent.Feature exactly
	// - "contains": Parent.Feature holds a value called Name
	// - "absent": Parent.Feature holds no value called Name
	// - "accepted": request Step was accepted
	// - "suppressed": request Step was suppressed
	Type string `yaml:"type"`

	// Parent is the element path (used by order, contains, absent).
	Parent string `yaml:"parent,omitempty"`

	// Feature is the containment feature (used by order, contains, absent).
	Feature string `yaml:"feature,omitempty"`

	// Names is the expected value order (used by order).
	Names []string `yaml:"names,omitempty"`

	// Name is the value name (used by contains, absent).
	Name string `yaml:"name,omitempty"`

	// Step is the 1-based request number (used by accepted, suppressed).
	Step int64 `yaml:"step,omitempty"`
}

// Assertion type constants.
const (
	AssertOrder      = "order"
	AssertContains   = "contains"
	AssertAbsent     = "absent"
	AssertAccepted   = "accepted"
	AssertSuppressed = "suppressed"
)

var validExpect = map[string]bool{
	string(ir.StatusAccepted):   true,
	string(ir.StatusSuppressed): true,
	string(ir.StatusRemoved):    true,
	string(ir.StatusNotFound):   true,
}

// LoadScenario reads and parses a scenario YAML file. Model paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving model paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve model paths relative to base path BEFORE validation
	for i, modelPath := range scenario.Models {
		if !filepath.IsAbs(modelPath) && basePath != "" {
			scenario.Models[i] = filepath.Join(basePath, modelPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" && len(s.Models) == 0 {
		return fmt.Errorf("model or models is required")
	}
	if s.Model != "" && len(s.Models) > 0 {
		return fmt.Errorf("model and models are mutually exclusive")
	}

	for _, modelPath := range s.Models {
		if _, err := os.Stat(modelPath); os.IsNotExist(err) {
			return fmt.Errorf("model file not found: %s", modelPath)
		}
	}

	if s.TieBreak != "" && s.TieBreak != "after" && s.TieBreak != "before" {
		return fmt.Errorf("tie_break must be \"after\" or \"before\", got %q", s.TieBreak)
	}

	for i, step := range s.Steps {
		if step.Feature == "" {
			return fmt.Errorf("steps[%d]: feature is required", i)
		}
		if err := validateStepValue(fmt.Sprintf("steps[%d].value", i), step.Value); err != nil {
			return err
		}
		if step.Expect != "" && !validExpect[step.Expect] {
			return fmt.Errorf("steps[%d]: unknown expect %q", i, step.Expect)
		}
	}

	if len(s.Assertions) == 0 && !s.Idempotent && !s.Permutations {
		return fmt.Errorf("assertions list is required unless idempotent or permutations is set")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStepValue(field string, v StepValue) error {
	switch {
	case v.Text != nil && v.Kind != "":
		return fmt.Errorf("%s: text and kind are mutually exclusive", field)
	case v.Text == nil && v.Kind == "":
		return fmt.Errorf("%s: text or kind is required", field)
	}
	for i, f := range v.Features {
		for j, nested := range f.Values {
			if err := validateStepValue(fmt.Sprintf("%s.features[%d].values[%d]", field, i, j), nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOrder:
		if a.Feature == "" {
			return fmt.Errorf("assertions[%d]: feature is required for order", index)
		}
	case AssertContains, AssertAbsent:
		if a.Feature == "" || a.Name == "" {
			return fmt.Errorf("assertions[%d]: feature and name are required for %s", index, a.Type)
		}
	case AssertAccepted, AssertSuppressed:
		if a.Step < 1 {
			return fmt.Errorf("assertions[%d]: step must be >= 1 for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// Doc converts a step to a request document.
func (s Step) Doc() ir.RequestDoc {
	return ir.RequestDoc{
		Parent:    s.Parent,
		Feature:   s.Feature,
		Value:     s.Value.Doc(),
		Remove:    s.Remove,
		Priority:  s.Priority,
		Before:    s.Before,
		Source:    s.Source,
		Generator: s.Generator,
	}
}

// Doc converts a step value to a value document. Relations are emitted in
// name order.
func (v StepValue) Doc() ir.ValueDoc {
	if v.Text != nil {
		return ir.Text(*v.Text)
	}

	doc := &ir.ElementDoc{
		Kind:      v.Kind,
		Name:      v.Name,
		Predicate: v.Predicate,
		Action:    v.Action,
	}

	attrs := ir.Attrs{}
	if v.Theorem {
		attrs[model.AttrTheorem] = ir.AttrBool(true)
	}
	if v.Extended {
		attrs[model.AttrExtended] = ir.AttrBool(true)
	}
	if v.Comment != "" {
		attrs[model.AttrComment] = ir.AttrString(v.Comment)
	}
	if len(attrs) > 0 {
		doc.Attrs = attrs
	}

	for _, f := range v.Features {
		fd := ir.FeatureDoc{Name: f.Name}
		for _, nested := range f.Values {
			fd.Values = append(fd.Values, nested.Doc())
		}
		doc.Features = append(doc.Features, fd)
	}

	rels := make([]string, 0, len(v.Refs))
	for rel := range v.Refs {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		doc.Refs = append(doc.Refs, ir.RefDoc{Relation: rel, Targets: v.Refs[rel]})
	}

	return ir.ValueDoc{Element: doc}
}
