package dea

import (
	"context"

	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/dataset"
	"github.com/yiluheihei/pipeComp/pipeline"
)

// Filtering methods.
const (
	FilterNone         = "none"
	FilterFilterByExpr = "filterByExpr"
)

// Parameters of the filtering step.
const (
	ParamFilter         = "filt"
	ParamFilterMinCount = "filt.min.count"
)

// FilterByExpr returns the rows of genes with enough counts to be worth testing. A gene is kept
// when its CPM is at least minCount/median(library size)*1e6 in at least as many samples as the
// smallest group, and its total count is at least 1.5*minCount.
func FilterByExpr(d *dataset.Dataset, minCount float64) []int {
	minSamples := 0
	for i, n := range d.GroupSizes() {
		if i == 0 || n < minSamples {
			minSamples = n
		}
	}
	// Allow for rounding error in the cutoffs.
	const tol = 1e-14
	cutoff := minCount / d.MedianLibrarySize() * 1e6
	minTotal := 1.5 * minCount

	cpm := d.CPM()
	r, c := cpm.Dims()
	var keep []int
	for i := 0; i < r; i++ {
		above := 0
		total := 0.0
		for j := 0; j < c; j++ {
			if cpm.At(i, j) >= cutoff-tol {
				above++
			}
			total += d.Counts.At(i, j)
		}
		if above >= minSamples && total >= minTotal-tol {
			keep = append(keep, i)
		}
	}
	return keep
}

func runFilter(_ context.Context, input interface{}, params pipeline.Combination) (interface{}, error) {
	d, ok := input.(*dataset.Dataset)
	if !ok {
		return nil, errors.Errorf("filtering expects a dataset, got %T", input)
	}
	switch method := params.Value(ParamFilter); method {
	case FilterNone:
		return d, nil
	case FilterFilterByExpr:
		minCount, err := params.Float(ParamFilterMinCount)
		if err != nil {
			return nil, err
		}
		if minCount < 0 {
			return nil, errors.Errorf("%s must not be negative", ParamFilterMinCount)
		}
		keep := FilterByExpr(d, minCount)
		if len(keep) == 0 {
			return nil, errors.New("no genes passed filtering")
		}
		return d.Subset(keep), nil
	default:
		return nil, errors.Errorf("unknown filtering method %q", method)
	}
}

func evaluateFilter(source, output interface{}) (map[string]float64, error) {
	src, ok := source.(*dataset.Dataset)
	if !ok {
		return nil, errors.Errorf("expected a dataset, got %T", source)
	}
	d, ok := output.(*dataset.Dataset)
	if !ok {
		return nil, errors.Errorf("expected a dataset, got %T", output)
	}
	m := map[string]float64{
		"genes.kept": float64(d.NumGenes()),
		"prop.kept":  float64(d.NumGenes()) / float64(src.NumGenes()),
	}
	var de, kept float64
	for _, t := range src.Truth {
		if t.IsDE {
			de++
		}
	}
	if de > 0 {
		for _, g := range d.Genes {
			if t, ok := src.Truth[g]; ok && t.IsDE {
				kept++
			}
		}
		m["de.kept"] = kept / de
	}
	return m, nil
}

// FilterStep removes lowly expressed genes.
func FilterStep() pipeline.Step {
	return pipeline.Step{
		Name:        "filtering",
		Description: "remove genes with too few counts to be tested",
		Parameters:  []string{ParamFilter, ParamFilterMinCount},
		Run:         runFilter,
		Evaluate:    evaluateFilter,
	}
}
