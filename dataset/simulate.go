package dataset

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SimOptions controls the simulation of a two-group count dataset.
type SimOptions struct {
	Name            string
	Genes           int
	SamplesPerGroup int
	// PropDE is the proportion of genes that are differentially expressed.
	PropDE float64
	// LogFC is the mean absolute log2 fold change of differentially expressed genes.
	LogFC float64
	// Dispersion of the gamma-Poisson counts; the variance of a gene is mu + Dispersion*mu^2.
	Dispersion float64
	// MeanLog and SdLog describe the log-normal distribution of baseline gene means.
	MeanLog float64
	SdLog   float64
	// HiddenEffect is the standard deviation of the log2 loading of a hidden factor, unrelated to
	// the groups, on the genes it affects. Zero disables it.
	HiddenEffect float64
	// HiddenProp is the proportion of genes affected by the hidden factor.
	HiddenProp float64
	Seed       uint64
}

// DefaultSimOptions returns options for a small dataset with a hidden factor.
func DefaultSimOptions() SimOptions {
	return SimOptions{
		Name:            "simulated",
		Genes:           2000,
		SamplesPerGroup: 5,
		PropDE:          0.1,
		LogFC:           1.5,
		Dispersion:      0.1,
		MeanLog:         4,
		SdLog:           1.5,
		HiddenEffect:    1,
		HiddenProp:      0.3,
		Seed:            1,
	}
}

// Simulate generates a dataset with a known set of differentially expressed genes. The same
// options always produce the same dataset.
func Simulate(o SimOptions) (*Dataset, error) {
	if o.Genes <= 0 || o.SamplesPerGroup < 2 {
		return nil, errors.Errorf("simulation needs genes > 0 and at least 2 samples per group, got %d and %d", o.Genes, o.SamplesPerGroup)
	}
	if o.PropDE < 0 || o.PropDE > 1 || o.HiddenProp < 0 || o.HiddenProp > 1 {
		return nil, errors.New("simulation proportions must be between 0 and 1")
	}
	if o.Dispersion < 0 {
		return nil, errors.New("simulation dispersion must not be negative")
	}

	src := rand.NewSource(o.Seed)
	rng := rand.New(src)
	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	n := 2 * o.SamplesPerGroup
	d := &Dataset{
		Name:    o.Name,
		Genes:   make([]string, o.Genes),
		Samples: make([]string, n),
		Groups:  make([]string, n),
		Truth:   make(map[string]Truth, o.Genes),
	}
	for j := 0; j < n; j++ {
		d.Samples[j] = fmt.Sprintf("S%02d", j+1)
		if j < o.SamplesPerGroup {
			d.Groups[j] = "A"
		} else {
			d.Groups[j] = "B"
		}
	}

	// Per-sample library size factors and hidden factor scores.
	libFactor := make([]float64, n)
	hidden := make([]float64, n)
	for j := 0; j < n; j++ {
		libFactor[j] = math.Exp(0.2 * unit.Rand())
		hidden[j] = unit.Rand()
	}

	nde := int(math.Round(o.PropDE * float64(o.Genes)))
	nhidden := int(math.Round(o.HiddenProp * float64(o.Genes)))
	dePos := rng.Perm(o.Genes)[:nde]
	hiddenPos := rng.Perm(o.Genes)[:nhidden]

	logFC := make([]float64, o.Genes)
	for _, g := range dePos {
		fc := math.Abs(o.LogFC + 0.3*unit.Rand())
		if rng.Float64() < 0.5 {
			fc = -fc
		}
		logFC[g] = fc
	}
	loading := make([]float64, o.Genes)
	for _, g := range hiddenPos {
		loading[g] = o.HiddenEffect * unit.Rand()
	}

	counts := mat.NewDense(o.Genes, n, nil)
	for i := 0; i < o.Genes; i++ {
		d.Genes[i] = fmt.Sprintf("gene%05d", i+1)
		d.Truth[d.Genes[i]] = Truth{Gene: d.Genes[i], IsDE: logFC[i] != 0, ExpectedLogFC: logFC[i]}

		base := math.Exp(o.MeanLog + o.SdLog*unit.Rand())
		for j := 0; j < n; j++ {
			l2 := loading[i] * hidden[j]
			if d.Groups[j] == "B" {
				l2 += logFC[i]
			}
			mu := base * libFactor[j] * math.Pow(2, l2)
			counts.Set(i, j, negativeBinomial(mu, o.Dispersion, src))
		}
	}
	d.Counts = counts
	return d, nil
}

// negativeBinomial draws a gamma-Poisson count with mean mu and dispersion phi.
func negativeBinomial(mu, phi float64, src rand.Source) float64 {
	if mu <= 0 {
		return 0
	}
	lambda := mu
	if phi > 0 {
		lambda = distuv.Gamma{Alpha: 1 / phi, Beta: 1 / (phi * mu), Src: src}.Rand()
	}
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: src}.Rand()
}
