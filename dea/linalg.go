package dea

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// designMatrix builds an n x (2+k) design with an intercept, the group indicator and the columns
// of covariates (which may be nil).
func designMatrix(group []float64, covariates *mat.Dense) *mat.Dense {
	n := len(group)
	k := 0
	if covariates != nil {
		_, k = covariates.Dims()
	}
	x := mat.NewDense(n, 2+k, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, group[i])
		for j := 0; j < k; j++ {
			x.Set(i, 2+j, covariates.At(i, j))
		}
	}
	return x
}

// unscaled returns (X'X)^-1.
func unscaled(x mat.Matrix) (*mat.Dense, error) {
	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, errors.Wrap(err, "design matrix is not of full rank")
	}
	return &inv, nil
}

// residualMaker returns I - X(X'X)^-1X', which maps a response onto the residuals of a least
// squares fit on X.
func residualMaker(x *mat.Dense) (*mat.Dense, error) {
	inv, err := unscaled(x)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	var h mat.Dense
	h.Product(x, inv, x.T())
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	m.Sub(m, &h)
	return m, nil
}
