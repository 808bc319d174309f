// Package eval provides measures of the accuracy of significance calls.
package eval

import "strconv"

// Evaluator is an interface for evaluating a set of significance calls against a known truth.
type Evaluator interface {
	Score(c Confusion) float64
	Name() string
}

// Evaluate scores a confusion matrix using supplied evaluation measures.
func Evaluate(evaluators []Evaluator, c Confusion) map[string]float64 {
	scores := make(map[string]float64, len(evaluators))
	for _, evaluator := range evaluators {
		scores[evaluator.Name()] = evaluator.Score(c)
	}
	return scores
}

// AtThreshold names a measure computed at a significance threshold, e.g. "TPR@0.05".
func AtThreshold(name string, threshold float64) string {
	return name + "@" + strconv.FormatFloat(threshold, 'g', -1, 64)
}
