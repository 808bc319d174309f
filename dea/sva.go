package dea

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/dataset"
	"github.com/yiluheihei/pipeComp/pipeline"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Surrogate variable methods.
const (
	SVANone = "none"
	SVASVD  = "svd"
)

// Parameters of the surrogate variable step.
const (
	ParamSVAMethod = "sva.method"
	// ParamSVANumber is the number of surrogate variables, or "auto" to estimate it.
	ParamSVANumber = "sva.n"
)

// AutoNumSV requests that the number of surrogate variables is estimated.
const AutoNumSV = "auto"

// Corrected is a dataset together with the covariates that should be adjusted for when testing.
type Corrected struct {
	Data   *dataset.Dataset
	LogCPM *mat.Dense
	// Covariates is a samples x NumSV matrix, nil when NumSV is zero.
	Covariates *mat.Dense
	NumSV      int
}

// SurrogateVariables estimates k surrogate variables from the residuals of the log expression y
// (samples x genes) after fitting the group indicator. The result is a samples x k matrix holding
// the leading left singular vectors of the residuals.
func SurrogateVariables(y mat.Matrix, group []float64, k int) (*mat.Dense, error) {
	n, _ := y.Dims()
	if k == 0 {
		return nil, nil
	}
	if k < 0 || k > n-3 {
		return nil, errors.Errorf("cannot estimate %d surrogate variables from %d samples", k, n)
	}
	res, err := residuals(y, group)
	if err != nil {
		return nil, err
	}
	var svd mat.SVD
	if ok := svd.Factorize(res, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition of residuals failed")
	}
	var u mat.Dense
	svd.UTo(&u)
	sv := mat.NewDense(n, k, nil)
	sv.Copy(u.Slice(0, n, 0, k))
	return sv, nil
}

func residuals(y mat.Matrix, group []float64) (*mat.Dense, error) {
	m, err := residualMaker(designMatrix(group, nil))
	if err != nil {
		return nil, err
	}
	var res mat.Dense
	res.Mul(m, y)
	return &res, nil
}

// varianceExplained returns the proportion of variance of each singular component of x.
func varianceExplained(x mat.Matrix) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDNone); !ok {
		return nil, errors.New("singular value decomposition failed")
	}
	s := svd.Values(nil)
	var total float64
	for i := range s {
		s[i] *= s[i]
		total += s[i]
	}
	if total == 0 {
		return make([]float64, len(s)), nil
	}
	for i := range s {
		s[i] /= total
	}
	return s, nil
}

// NumSV estimates the number of surrogate variables with the permutation procedure of Buja and
// Eyuboglu: the variance explained by each component of the residuals is compared with that of
// residuals whose rows were independently permuted. Components are counted while their permutation
// p-value stays at or below sig. The estimate never exceeds n-3.
func NumSV(ctx context.Context, y mat.Matrix, group []float64, permutations int, sig float64, seed uint64) (int, error) {
	if permutations < 1 {
		return 0, errors.Errorf("number of permutations must be positive, got %d", permutations)
	}
	if !(sig > 0 && sig < 1) {
		return 0, errors.Errorf("significance must be between 0 and 1, got %v", sig)
	}
	n, g := y.Dims()
	if n < 4 {
		return 0, nil
	}
	res, err := residuals(y, group)
	if err != nil {
		return 0, err
	}
	observed, err := varianceExplained(res)
	if err != nil {
		return 0, err
	}
	maxK := n - 3
	if len(observed) < maxK {
		maxK = len(observed)
	}

	rng := rand.New(rand.NewSource(seed))
	exceed := make([]float64, maxK)
	perm := mat.NewDense(n, g, nil)
	col := make([]float64, n)
	for b := 0; b < permutations; b++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		// Permute each gene's residuals across samples.
		for j := 0; j < g; j++ {
			mat.Col(col, j, res)
			for i, p := range rng.Perm(n) {
				perm.Set(i, j, col[p])
			}
		}
		null, err := residuals(perm, group)
		if err != nil {
			return 0, err
		}
		ve, err := varianceExplained(null)
		if err != nil {
			return 0, err
		}
		for i := 0; i < maxK; i++ {
			if ve[i] >= observed[i] {
				exceed[i]++
			}
		}
	}

	k := 0
	pmax := 0.0
	for i := 0; i < maxK; i++ {
		p := exceed[i] / float64(permutations)
		if p > pmax {
			pmax = p
		}
		if pmax > sig {
			break
		}
		k++
	}
	return k, nil
}

// SVAOptions controls the estimation of the number of surrogate variables.
type SVAOptions struct {
	Permutations int
	Significance float64
	Seed         uint64
}

func (o SVAOptions) run(ctx context.Context, input interface{}, params pipeline.Combination) (interface{}, error) {
	d, ok := input.(*dataset.Dataset)
	if !ok {
		return nil, errors.Errorf("surrogate variable estimation expects a dataset, got %T", input)
	}
	if d.NumGenes() == 0 {
		return nil, errors.New("dataset has no genes")
	}
	c := &Corrected{Data: d, LogCPM: d.LogCPM()}

	switch method := params.Value(ParamSVAMethod); method {
	case SVANone:
		return c, nil
	case SVASVD:
	default:
		return nil, errors.Errorf("unknown surrogate variable method %q", method)
	}

	y := c.LogCPM.T()
	group := d.GroupIndicator()
	var k int
	if v := params.Value(ParamSVANumber); v == AutoNumSV {
		n, err := NumSV(ctx, y, group, o.Permutations, o.Significance, o.Seed)
		if err != nil {
			return nil, err
		}
		k = n
	} else {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s", ParamSVANumber)
		}
		k = n
	}

	sv, err := SurrogateVariables(y, group, k)
	if err != nil {
		return nil, err
	}
	c.Covariates = sv
	c.NumSV = k
	return c, nil
}

func evaluateSVA(_, output interface{}) (map[string]float64, error) {
	c, ok := output.(*Corrected)
	if !ok {
		return nil, errors.Errorf("expected corrected data, got %T", output)
	}
	return map[string]float64{"n.sv": float64(c.NumSV)}, nil
}

// SVAStep estimates surrogate variables of unwanted variation.
func SVAStep(o SVAOptions) pipeline.Step {
	return pipeline.Step{
		Name:        "sva",
		Description: "estimate surrogate variables of unwanted variation",
		Parameters:  []string{ParamSVAMethod, ParamSVANumber},
		Run:         o.run,
		Evaluate:    evaluateSVA,
	}
}
