package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiluheihei/pipeComp/pipeline"
)

func noop(_ context.Context, input interface{}, _ pipeline.Combination) (interface{}, error) {
	return input, nil
}

func TestNewDefinition(t *testing.T) {
	_, err := pipeline.NewDefinition()
	assert.Equal(t, pipeline.ErrNoSteps, err)

	_, err = pipeline.NewDefinition(
		pipeline.Step{Name: "a", Parameters: []string{"x"}, Run: noop},
		pipeline.Step{Name: "a", Run: noop},
	)
	assert.Equal(t, pipeline.ErrDuplicateStep, errors.Cause(err))

	_, err = pipeline.NewDefinition(
		pipeline.Step{Name: "a", Parameters: []string{"x"}, Run: noop},
		pipeline.Step{Name: "b", Parameters: []string{"x"}, Run: noop},
	)
	assert.Equal(t, pipeline.ErrDuplicateParameter, errors.Cause(err))

	_, err = pipeline.NewDefinition(pipeline.Step{Name: "a"})
	assert.Error(t, err)
}

func TestDefinitionSteps(t *testing.T) {
	d, err := pipeline.NewDefinition(
		pipeline.Step{Name: "a", Parameters: []string{"x"}, Run: noop},
		pipeline.Step{Name: "c", Parameters: []string{"z"}, Run: noop},
	)
	require.NoError(t, err)

	require.NoError(t, d.AddStep(pipeline.Step{Name: "b", Parameters: []string{"y"}, Run: noop}, "a"))
	assert.Equal(t, []string{"a", "b", "c"}, d.StepNames())
	assert.Equal(t, []string{"x", "y", "z"}, d.Parameters())

	require.NoError(t, d.AddStep(pipeline.Step{Name: "first", Run: noop}, ""))
	assert.Equal(t, []string{"first", "a", "b", "c"}, d.StepNames())

	err = d.AddStep(pipeline.Step{Name: "d", Run: noop}, "missing")
	assert.Equal(t, pipeline.ErrUnknownStep, errors.Cause(err))

	// A failing insertion leaves the pipeline unchanged.
	err = d.AddStep(pipeline.Step{Name: "d", Parameters: []string{"x"}, Run: noop}, "c")
	assert.Equal(t, pipeline.ErrDuplicateParameter, errors.Cause(err))
	assert.Equal(t, []string{"first", "a", "b", "c"}, d.StepNames())

	require.NoError(t, d.RemoveStep("first"))
	assert.Equal(t, []string{"a", "b", "c"}, d.StepNames())
	assert.Equal(t, pipeline.ErrUnknownStep, errors.Cause(d.RemoveStep("first")))

	assert.Equal(t, map[string][]string{"a": {"x"}, "b": {"y"}, "c": {"z"}}, d.Arguments())
	s, ok := d.Step("b")
	assert.True(t, ok)
	assert.Equal(t, []string{"y"}, s.Parameters)
	assert.True(t, strings.Contains(d.String(), "2. b(y)"))
}

func TestValidate(t *testing.T) {
	d, err := pipeline.NewDefinition(
		pipeline.Step{Name: "a", Parameters: []string{"x"}, Run: noop},
		pipeline.Step{Name: "b", Parameters: []string{"y"}, Run: noop},
	)
	require.NoError(t, err)

	assert.NoError(t, d.Validate(pipeline.Alternatives{"x": {"1"}, "y": {"2", "3"}}))
	assert.Equal(t, pipeline.ErrNoAlternatives, errors.Cause(d.Validate(pipeline.Alternatives{"x": {"1"}})))
	assert.Equal(t, pipeline.ErrNoAlternatives, errors.Cause(d.Validate(pipeline.Alternatives{"x": {"1"}, "y": {}})))
	assert.Equal(t, pipeline.ErrUnknownParameter, errors.Cause(d.Validate(pipeline.Alternatives{"x": {"1"}, "y": {"2"}, "z": {"3"}})))
}

func TestCombinations(t *testing.T) {
	d, err := pipeline.NewDefinition(
		pipeline.Step{Name: "a", Parameters: []string{"x"}, Run: noop},
		pipeline.Step{Name: "b", Parameters: []string{"y", "z"}, Run: noop},
	)
	require.NoError(t, err)
	alts := pipeline.Alternatives{"x": {"1", "2"}, "y": {"a", "b", "c"}, "z": {"t"}}

	cs, err := pipeline.Combinations(d, alts, nil)
	require.NoError(t, err)
	require.Len(t, cs, 6)
	assert.Equal(t, pipeline.Combination{"x": "1", "y": "a", "z": "t"}, cs[0])
	assert.Equal(t, pipeline.Combination{"x": "1", "y": "b", "z": "t"}, cs[1])
	assert.Equal(t, pipeline.Combination{"x": "2", "y": "c", "z": "t"}, cs[5])

	seen := make(map[string]bool)
	for _, c := range cs {
		assert.False(t, seen[c.Key()])
		seen[c.Key()] = true
	}

	cs, err = pipeline.Combinations(d, alts, func(c pipeline.Combination) bool {
		return c["y"] != "b"
	})
	require.NoError(t, err)
	assert.Len(t, cs, 4)

	_, err = pipeline.Combinations(d, alts, func(pipeline.Combination) bool { return false })
	assert.Equal(t, pipeline.ErrNoCombinations, err)

	assert.Equal(t, []string{"x", "y"}, alts.Varying(d.Parameters()))
}

func TestCombinationValues(t *testing.T) {
	c := pipeline.Combination{"n": "3", "f": "0.5", "b": "true", "s": "x"}

	i, err := c.Int("n")
	require.NoError(t, err)
	assert.Equal(t, 3, i)
	f, err := c.Float("f")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
	b, err := c.Bool("b")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = c.Int("s")
	assert.Error(t, err)
	_, err = c.Float("missing")
	assert.Equal(t, pipeline.ErrUnknownParameter, errors.Cause(err))

	assert.Equal(t, "b=true;f=0.5;n=3;s=x", c.Key())
	assert.Equal(t, pipeline.Combination{"n": "3"}, c.Subset([]string{"n", "missing"}))
	assert.Equal(t, "x/3", c.Label([]string{"s", "n"}))
	assert.Equal(t, c.Hash(), pipeline.Combination{"s": "x", "n": "3", "f": "0.5", "b": "true"}.Hash())
	assert.Len(t, c.Hash(), 64)
}
