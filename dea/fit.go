package dea

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/pipeline"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Differential expression methods.
const (
	MethodLM    = "lm"
	MethodWelch = "welch"
)

// ParamMethod is the parameter of the differential expression step.
const ParamMethod = "dea.method"

// Row is the test result of a single gene.
type Row struct {
	Gene      string
	LogFC     float64
	Statistic float64
	PValue    float64
	FDR       float64
}

// Table holds the test results of every tested gene.
type Table struct {
	Method string
	Rows   []Row
}

// twoSided returns the two-sided p-value of a t statistic. A zero standard error gives a p-value
// of 0 for a non-zero effect and 1 otherwise.
func twoSided(effect, se, df float64) (t, p float64) {
	if se == 0 || math.IsNaN(se) {
		if effect == 0 {
			return 0, 1
		}
		return math.Copysign(math.Inf(1), effect), 0
	}
	t = effect / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return t, 2 * dist.Survival(math.Abs(t))
}

// LinearModel fits an ordinary least squares model to the log expression of every gene, with an
// intercept, the group indicator and the covariates as predictors, and tests the group coefficient.
func LinearModel(c *Corrected) (Table, error) {
	d := c.Data
	x := designMatrix(d.GroupIndicator(), c.Covariates)
	n, p := x.Dims()
	df := float64(n - p)
	if df < 1 {
		return Table{}, errors.Errorf("no residual degrees of freedom with %d samples and %d coefficients", n, p)
	}
	inv, err := unscaled(x)
	if err != nil {
		return Table{}, err
	}

	y := c.LogCPM.T() // samples x genes
	var beta, fitted, res mat.Dense
	beta.Product(inv, x.T(), y)
	fitted.Mul(x, &beta)
	res.Sub(y, &fitted)

	_, g := y.Dims()
	t := Table{Method: MethodLM, Rows: make([]Row, g)}
	pv := make([]float64, g)
	scale := math.Sqrt(inv.At(1, 1))
	for j := 0; j < g; j++ {
		var rss float64
		for i := 0; i < n; i++ {
			e := res.At(i, j)
			rss += e * e
		}
		se := math.Sqrt(rss/df) * scale
		effect := beta.At(1, j)
		ts, pval := twoSided(effect, se, df)
		t.Rows[j] = Row{Gene: d.Genes[j], LogFC: effect, Statistic: ts, PValue: pval}
		pv[j] = pval
	}
	t.adjust(pv)
	return t, nil
}

// Welch runs Welch's unequal variance t test on the log expression of every gene. Covariates are
// ignored.
func Welch(c *Corrected) (Table, error) {
	d := c.Data
	group := d.GroupIndicator()
	var a, b []int
	for i, v := range group {
		if v == 0 {
			a = append(a, i)
		} else {
			b = append(b, i)
		}
	}
	if len(a) < 2 || len(b) < 2 {
		return Table{}, errors.New("welch test needs at least two samples per group")
	}

	g, _ := c.LogCPM.Dims()
	t := Table{Method: MethodWelch, Rows: make([]Row, g)}
	pv := make([]float64, g)
	xa := make([]float64, len(a))
	xb := make([]float64, len(b))
	na, nb := float64(len(a)), float64(len(b))
	for i := 0; i < g; i++ {
		for k, s := range a {
			xa[k] = c.LogCPM.At(i, s)
		}
		for k, s := range b {
			xb[k] = c.LogCPM.At(i, s)
		}
		ma, va := stat.MeanVariance(xa, nil)
		mb, vb := stat.MeanVariance(xb, nil)
		sa, sb := va/na, vb/nb
		se := math.Sqrt(sa + sb)
		df := (sa + sb) * (sa + sb) / (sa*sa/(na-1) + sb*sb/(nb-1))
		ts, pval := twoSided(mb-ma, se, df)
		t.Rows[i] = Row{Gene: d.Genes[i], LogFC: mb - ma, Statistic: ts, PValue: pval}
		pv[i] = pval
	}
	t.adjust(pv)
	return t, nil
}

func (t *Table) adjust(p []float64) {
	for i, q := range AdjustBH(p) {
		t.Rows[i].FDR = q
	}
}

func runDEA(_ context.Context, input interface{}, params pipeline.Combination) (interface{}, error) {
	c, ok := input.(*Corrected)
	if !ok {
		return nil, errors.Errorf("differential expression expects corrected data, got %T", input)
	}
	switch method := params.Value(ParamMethod); method {
	case MethodLM:
		return LinearModel(c)
	case MethodWelch:
		return Welch(c)
	default:
		return nil, errors.Errorf("unknown differential expression method %q", method)
	}
}
