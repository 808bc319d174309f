package dea

import (
	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/dataset"
	"github.com/yiluheihei/pipeComp/eval"
)

// DefaultThresholds are the FDR thresholds at which significance calls are evaluated.
var DefaultThresholds = []float64{0.01, 0.05, 0.1}

// Evaluators are the measures reported at every threshold.
var Evaluators = []eval.Evaluator{eval.TP, eval.FP, eval.FN, eval.TN, eval.FDR, eval.TPR, eval.PPV}

// EvaluateTable compares the test results with the truth. A gene is called when its adjusted
// p-value is below the threshold; genes of the truth that were not tested count as not called.
// The correlation of estimated and expected log fold changes is computed over tested genes.
func EvaluateTable(t Table, truth map[string]dataset.Truth, thresholds []float64) map[string]float64 {
	de := make(map[string]bool, len(truth))
	for g, tr := range truth {
		de[g] = tr.IsDE
	}

	m := make(map[string]float64)
	for _, th := range thresholds {
		calls := make(map[string]bool)
		for _, r := range t.Rows {
			if r.FDR < th {
				calls[r.Gene] = true
			}
		}
		for name, v := range eval.Evaluate(Evaluators, eval.NewConfusion(calls, de)) {
			m[eval.AtThreshold(name, th)] = v
		}
	}

	var est, exp []float64
	for _, r := range t.Rows {
		if tr, ok := truth[r.Gene]; ok {
			est = append(est, r.LogFC)
			exp = append(exp, tr.ExpectedLogFC)
		}
	}
	m["logFC.pearson"] = eval.Pearson(est, exp)
	m["logFC.spearman"] = eval.Spearman(est, exp)
	m["n.tested"] = float64(len(t.Rows))
	return m
}

func evaluateDEA(thresholds []float64) func(source, output interface{}) (map[string]float64, error) {
	return func(source, output interface{}) (map[string]float64, error) {
		d, ok := source.(*dataset.Dataset)
		if !ok {
			return nil, errors.Errorf("expected a dataset, got %T", source)
		}
		t, ok := output.(Table)
		if !ok {
			return nil, errors.Errorf("expected a test table, got %T", output)
		}
		if d.Truth == nil {
			return map[string]float64{"n.tested": float64(len(t.Rows))}, nil
		}
		return EvaluateTable(t, d.Truth, thresholds), nil
	}
}
