package eval

import (
	"fmt"
	"math"
)

// Confusion counts the outcomes of significance calls.
type Confusion struct {
	TP, FP, FN, TN float64
}

// NewConfusion compares the calls against the truth. Only features present in the truth are
// counted; features of the truth missing from calls are negative calls.
func NewConfusion(calls map[string]bool, truth map[string]bool) Confusion {
	var c Confusion
	for id, positive := range truth {
		called := calls[id]
		switch {
		case called && positive:
			c.TP++
		case called && !positive:
			c.FP++
		case !called && positive:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// Add returns the element-wise sum of two confusion matrices.
func (c Confusion) Add(o Confusion) Confusion {
	return Confusion{TP: c.TP + o.TP, FP: c.FP + o.FP, FN: c.FN + o.FN, TN: c.TN + o.TN}
}

type tpr struct{}
type fdr struct{}
type ppv struct{}
type specificity struct{}
type count struct {
	name string
	f    func(Confusion) float64
}

// FMeasure computes f-measure, with the beta parameter controlling the precision and recall trade-off.
type FMeasure struct {
	Beta float64
}

var (
	// TPR is the true positive rate (sensitivity, recall).
	TPR = tpr{}
	// FDR is the false discovery rate. It is zero when nothing is called.
	FDR = fdr{}
	// PPV is the positive predictive value (precision).
	PPV = ppv{}
	// Specificity is the true negative rate.
	Specificity = specificity{}

	// TP is the number of true positives.
	TP = count{"TP", func(c Confusion) float64 { return c.TP }}
	// FP is the number of false positives.
	FP = count{"FP", func(c Confusion) float64 { return c.FP }}
	// FN is the number of false negatives.
	FN = count{"FN", func(c Confusion) float64 { return c.FN }}
	// TN is the number of true negatives.
	TN = count{"TN", func(c Confusion) float64 { return c.TN }}

	// F1Measure is f-measure with beta=1.
	F1Measure = FMeasure{Beta: 1}
)

func (tpr) Name() string {
	return "TPR"
}

func (tpr) Score(c Confusion) float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return c.TP / (c.TP + c.FN)
}

func (fdr) Name() string {
	return "FDR"
}

func (fdr) Score(c Confusion) float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return c.FP / (c.TP + c.FP)
}

func (ppv) Name() string {
	return "PPV"
}

func (ppv) Score(c Confusion) float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return c.TP / (c.TP + c.FP)
}

func (specificity) Name() string {
	return "Specificity"
}

func (specificity) Score(c Confusion) float64 {
	if c.TN+c.FP == 0 {
		return 0
	}
	return c.TN / (c.TN + c.FP)
}

func (n count) Name() string {
	return n.name
}

func (n count) Score(c Confusion) float64 {
	return n.f(c)
}

// Score uses the beta parameter to compute f-measure.
func (f FMeasure) Score(c Confusion) float64 {
	precision := PPV.Score(c)
	recall := TPR.Score(c)
	if precision == 0 || recall == 0 {
		return 0
	}
	betaSquared := math.Pow(f.Beta, 2)
	return ((1 + betaSquared) * (precision * recall)) / ((betaSquared * precision) + recall)
}

// Name calculates the name of the f-measure with beta parameter.
func (f FMeasure) Name() string {
	return fmt.Sprintf("F%v", f.Beta)
}
