// Package dea implements a benchmark of differential expression analysis pipelines: filtering of
// lowly expressed genes, estimation of surrogate variables and differential testing, each
// evaluated against a known truth.
package dea

import (
	"crypto/sha256"
	"fmt"

	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/pipeline"
)

// Options configures the differential expression pipeline.
type Options struct {
	SVA        SVAOptions
	Thresholds []float64
}

// DefaultOptions returns the options used by NewDefinition.
func DefaultOptions() Options {
	return Options{
		SVA: SVAOptions{
			Permutations: 20,
			Significance: 0.1,
			Seed:         1,
		},
		Thresholds: DefaultThresholds,
	}
}

// Validate checks the surrogate variable settings and thresholds.
func (o Options) Validate() error {
	if o.SVA.Permutations < 1 {
		return errors.Errorf("sva permutations must be positive, got %d", o.SVA.Permutations)
	}
	if !(o.SVA.Significance > 0 && o.SVA.Significance < 1) {
		return errors.Errorf("sva significance must be between 0 and 1, got %v", o.SVA.Significance)
	}
	for _, th := range o.Thresholds {
		if !(th > 0 && th < 1) {
			return errors.Errorf("threshold must be between 0 and 1, got %v", th)
		}
	}
	return nil
}

// Fingerprint digests the options that change the records of a run but are not parameters.
func (o Options) Fingerprint() string {
	thresholds := o.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	s := fmt.Sprintf("sva=%d/%v/%d;thresholds=%v", o.SVA.Permutations, o.SVA.Significance, o.SVA.Seed, thresholds)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

// DEAStep tests every gene for differential expression.
func DEAStep(thresholds []float64) pipeline.Step {
	return pipeline.Step{
		Name:        "dea",
		Description: "test genes for differential expression between the groups",
		Parameters:  []string{ParamMethod},
		Run:         runDEA,
		Evaluate:    evaluateDEA(thresholds),
	}
}

// NewDefinition returns the filtering -> sva -> dea pipeline.
func NewDefinition(o Options) (*pipeline.Definition, error) {
	if len(o.Thresholds) == 0 {
		o.Thresholds = DefaultThresholds
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	d, err := pipeline.NewDefinition(FilterStep(), SVAStep(o.SVA), DEAStep(o.Thresholds))
	if err != nil {
		return nil, err
	}
	d.Description = "differential expression analysis: filtering, surrogate variable estimation and testing"
	return d, nil
}

// DefaultAlternatives returns a grid of alternatives for the pipeline.
func DefaultAlternatives() pipeline.Alternatives {
	return pipeline.Alternatives{
		ParamFilter:         {FilterNone, FilterFilterByExpr},
		ParamFilterMinCount: {"10"},
		ParamSVAMethod:      {SVANone, SVASVD},
		ParamSVANumber:      {"1", "2", AutoNumSV},
		ParamMethod:         {MethodLM, MethodWelch},
	}
}

// SkipRedundant returns a filter that drops combinations whose only difference from another is a
// parameter the chosen method ignores: the minimum count when nothing is filtered, and the
// number of surrogate variables when none are estimated. The first alternative is kept.
func SkipRedundant(alternatives pipeline.Alternatives) pipeline.CombinationFilter {
	first := func(p string) string {
		if v := alternatives[p]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return func(c pipeline.Combination) bool {
		if c[ParamFilter] == FilterNone && c[ParamFilterMinCount] != first(ParamFilterMinCount) {
			return false
		}
		if c[ParamSVAMethod] == SVANone && c[ParamSVANumber] != first(ParamSVANumber) {
			return false
		}
		return true
	}
}
