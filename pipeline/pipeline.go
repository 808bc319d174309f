// Package pipeline provides a framework for constructing reproducible benchmarks of multi-step
// analysis pipelines. A pipeline is an ordered list of steps, each taking the output of the
// previous step and a set of parameters. Every parameter has a number of alternatives, and the
// runner executes all combinations of alternatives over a set of datasets, recording the
// evaluation of each step.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoSteps is returned when a definition does not contain any steps.
	ErrNoSteps = errors.New("pipeline definition has no steps")
	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")
	// ErrDuplicateParameter is returned when two steps declare the same parameter.
	ErrDuplicateParameter = errors.New("parameter declared by more than one step")
	// ErrUnknownStep is returned when a step is referenced that is not part of the definition.
	ErrUnknownStep = errors.New("unknown step")
	// ErrUnknownParameter is returned when alternatives are given for a parameter no step uses.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrNoAlternatives is returned when a parameter has no alternatives.
	ErrNoAlternatives = errors.New("parameter has no alternatives")
)

// RunFunc executes a step on the output of the previous step (or the dataset for the first step).
// Implementations must not modify the input, since outputs are shared by every combination that
// has the same parameters up to and including this step.
type RunFunc func(ctx context.Context, input interface{}, params Combination) (interface{}, error)

// EvaluateFunc computes metrics about the output of a step. The source is the input dataset
// the pipeline was run on.
type EvaluateFunc func(source, output interface{}) (map[string]float64, error)

// Step is a single stage of a pipeline.
type Step struct {
	Name        string
	Description string
	// Parameters lists the names of the parameters this step reads from a combination.
	Parameters []string
	Run        RunFunc
	// Evaluate is optional.
	Evaluate EvaluateFunc
}

// Definition contains all the information needed to run a pipeline.
type Definition struct {
	Description string
	Steps       []Step
}

// NewDefinition creates a pipeline definition out of the steps, in the order they are given.
func NewDefinition(steps ...Step) (*Definition, error) {
	d := &Definition{Steps: steps}
	if err := d.check(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Definition) check() error {
	if len(d.Steps) == 0 {
		return ErrNoSteps
	}
	steps := make(map[string]bool)
	params := make(map[string]string)
	for _, s := range d.Steps {
		if s.Run == nil {
			return errors.Errorf("step %q has no run function", s.Name)
		}
		if steps[s.Name] {
			return errors.Wrap(ErrDuplicateStep, s.Name)
		}
		steps[s.Name] = true
		for _, p := range s.Parameters {
			if other, ok := params[p]; ok {
				return errors.Wrapf(ErrDuplicateParameter, "%s (steps %s and %s)", p, other, s.Name)
			}
			params[p] = s.Name
		}
	}
	return nil
}

// Arguments returns the parameter names of each step, keyed by step name.
func (d *Definition) Arguments() map[string][]string {
	args := make(map[string][]string, len(d.Steps))
	for _, s := range d.Steps {
		args[s.Name] = append([]string(nil), s.Parameters...)
	}
	return args
}

// Parameters returns the parameter names of all steps in step order.
func (d *Definition) Parameters() []string {
	var params []string
	for _, s := range d.Steps {
		params = append(params, s.Parameters...)
	}
	return params
}

// Step returns the step with the given name.
func (d *Definition) Step(name string) (Step, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// StepNames returns the names of the steps in order.
func (d *Definition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// AddStep inserts a step directly after the step named after. If after is empty the step is
// inserted at the start of the pipeline.
func (d *Definition) AddStep(step Step, after string) error {
	idx := 0
	if len(after) > 0 {
		idx = -1
		for i, s := range d.Steps {
			if s.Name == after {
				idx = i + 1
				break
			}
		}
		if idx < 0 {
			return errors.Wrap(ErrUnknownStep, after)
		}
	}
	steps := make([]Step, 0, len(d.Steps)+1)
	steps = append(steps, d.Steps[:idx]...)
	steps = append(steps, step)
	steps = append(steps, d.Steps[idx:]...)

	prev := d.Steps
	d.Steps = steps
	if err := d.check(); err != nil {
		d.Steps = prev
		return err
	}
	return nil
}

// RemoveStep removes the named step from the pipeline.
func (d *Definition) RemoveStep(name string) error {
	for i, s := range d.Steps {
		if s.Name == name {
			if len(d.Steps) == 1 {
				return ErrNoSteps
			}
			d.Steps = append(d.Steps[:i:i], d.Steps[i+1:]...)
			return nil
		}
	}
	return errors.Wrap(ErrUnknownStep, name)
}

// Validate checks that the alternatives cover exactly the parameters of the pipeline.
func (d *Definition) Validate(alternatives Alternatives) error {
	if err := d.check(); err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, p := range d.Parameters() {
		known[p] = true
		if len(alternatives[p]) == 0 {
			return errors.Wrap(ErrNoAlternatives, p)
		}
	}
	for p := range alternatives {
		if !known[p] {
			return errors.Wrap(ErrUnknownParameter, p)
		}
	}
	return nil
}

// String describes the pipeline and its parameters.
func (d *Definition) String() string {
	var b strings.Builder
	if len(d.Description) > 0 {
		b.WriteString(d.Description)
		b.WriteString("\n")
	}
	for i, s := range d.Steps {
		fmt.Fprintf(&b, "%d. %s(%s)", i+1, s.Name, strings.Join(s.Parameters, ", "))
		if len(s.Description) > 0 {
			fmt.Fprintf(&b, ": %s", s.Description)
		}
		if s.Evaluate != nil {
			b.WriteString(" [evaluated]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
