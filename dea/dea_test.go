package dea_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiluheihei/pipeComp/dataset"
	"github.com/yiluheihei/pipeComp/dea"
	"github.com/yiluheihei/pipeComp/pipeline"
	"gonum.org/v1/gonum/mat"
)

func small() *dataset.Dataset {
	return &dataset.Dataset{
		Name:    "small",
		Genes:   []string{"g1", "g2", "g3"},
		Samples: []string{"s1", "s2", "s3", "s4"},
		Groups:  []string{"treated", "treated", "control", "control"},
		Counts: mat.NewDense(3, 4, []float64{
			10, 20, 30, 40,
			0, 0, 1, 0,
			90, 80, 69, 60,
		}),
	}
}

func simulated(t *testing.T, genes int, hidden float64) *dataset.Dataset {
	o := dataset.DefaultSimOptions()
	o.Genes = genes
	o.HiddenEffect = hidden
	d, err := dataset.Simulate(o)
	require.NoError(t, err)
	return d
}

func TestAdjustBH(t *testing.T) {
	adj := dea.AdjustBH([]float64{0.01, 0.04, 0.03, 0.5})
	expected := []float64{0.04, 0.16 / 3, 0.16 / 3, 0.5}
	for i := range expected {
		assert.InDelta(t, expected[i], adj[i], 1e-12)
	}

	adj = dea.AdjustBH([]float64{math.NaN(), 0.02})
	assert.True(t, math.IsNaN(adj[0]))
	assert.InDelta(t, 0.02, adj[1], 1e-12)

	assert.Empty(t, dea.AdjustBH(nil))
}

func TestFilterByExpr(t *testing.T) {
	assert.Equal(t, []int{0, 2}, dea.FilterByExpr(small(), 10))
	assert.Equal(t, []int{0, 1, 2}, dea.FilterByExpr(small(), 0))
}

func TestFilterStep(t *testing.T) {
	s := dea.FilterStep()
	d := small()

	out, err := s.Run(context.Background(), d, pipeline.Combination{dea.ParamFilter: dea.FilterNone})
	require.NoError(t, err)
	assert.Same(t, d, out)

	out, err = s.Run(context.Background(), d, pipeline.Combination{dea.ParamFilter: dea.FilterFilterByExpr, dea.ParamFilterMinCount: "10"})
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g3"}, out.(*dataset.Dataset).Genes)

	d.Truth = map[string]dataset.Truth{"g1": {Gene: "g1", IsDE: true}, "g2": {Gene: "g2", IsDE: true}}
	m, err := s.Evaluate(d, out)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m["genes.kept"])
	assert.InDelta(t, 2.0/3.0, m["prop.kept"], 1e-12)
	assert.Equal(t, 0.5, m["de.kept"])

	_, err = s.Run(context.Background(), d, pipeline.Combination{dea.ParamFilter: dea.FilterFilterByExpr, dea.ParamFilterMinCount: "1000"})
	assert.Error(t, err)
	_, err = s.Run(context.Background(), d, pipeline.Combination{dea.ParamFilter: "other"})
	assert.Error(t, err)
}

// known holds log expression values whose test results can be worked out by hand: two samples
// per group, and a t distribution with two degrees of freedom.
func known() *dea.Corrected {
	d := small()
	return &dea.Corrected{
		Data: d,
		LogCPM: mat.NewDense(3, 4, []float64{
			5, 6, 1, 2,
			1, 2, 1, 2,
			3, 2, 1, 2,
		}),
	}
}

func TestLinearModel(t *testing.T) {
	tbl, err := dea.LinearModel(known())
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, dea.MethodLM, tbl.Method)

	r := tbl.Rows[0]
	assert.Equal(t, "g1", r.Gene)
	assert.InDelta(t, 4, r.LogFC, 1e-9)
	assert.InDelta(t, 4*math.Sqrt2, r.Statistic, 1e-9)
	assert.InDelta(t, 0.0298575, r.PValue, 1e-6)
	assert.InDelta(t, 0.0895725, r.FDR, 1e-6)

	assert.InDelta(t, 0, tbl.Rows[1].LogFC, 1e-9)
	assert.InDelta(t, 1, tbl.Rows[1].PValue, 1e-9)

	assert.InDelta(t, 1, tbl.Rows[2].LogFC, 1e-9)
	assert.InDelta(t, 0.2928932, tbl.Rows[2].PValue, 1e-6)
	assert.InDelta(t, 0.4393398, tbl.Rows[2].FDR, 1e-6)
}

func TestWelch(t *testing.T) {
	c := known()
	tbl, err := dea.Welch(c)
	require.NoError(t, err)
	lm, err := dea.LinearModel(c)
	require.NoError(t, err)

	// With equal group sizes and variances both tests agree.
	for i := range tbl.Rows {
		assert.InDelta(t, lm.Rows[i].LogFC, tbl.Rows[i].LogFC, 1e-9)
		assert.InDelta(t, lm.Rows[i].Statistic, tbl.Rows[i].Statistic, 1e-9)
		assert.InDelta(t, lm.Rows[i].PValue, tbl.Rows[i].PValue, 1e-9)
	}
}

func TestLinearModelDegreesOfFreedom(t *testing.T) {
	c := known()
	c.Covariates = mat.NewDense(4, 2, []float64{1, 0, 0, 1, 1, 1, 0, 0})
	_, err := dea.LinearModel(c)
	assert.Error(t, err)
}

func TestSurrogateVariables(t *testing.T) {
	d := simulated(t, 200, 2)
	y := d.LogCPM().T()

	sv, err := dea.SurrogateVariables(y, d.GroupIndicator(), 2)
	require.NoError(t, err)
	r, c := sv.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 2, c)

	// Surrogate variables are orthogonal to the groups.
	for j := 0; j < c; j++ {
		var sum float64
		for i, g := range d.GroupIndicator() {
			sum += g * sv.At(i, j)
		}
		assert.InDelta(t, 0, sum, 1e-9)
	}

	sv, err = dea.SurrogateVariables(y, d.GroupIndicator(), 0)
	require.NoError(t, err)
	assert.Nil(t, sv)

	_, err = dea.SurrogateVariables(y, d.GroupIndicator(), 8)
	assert.Error(t, err)
}

func TestNumSV(t *testing.T) {
	d := simulated(t, 300, 3)
	y := d.LogCPM().T()

	k, err := dea.NumSV(context.Background(), y, d.GroupIndicator(), 20, 0.1, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, k, 1)
	assert.LessOrEqual(t, k, 7)

	again, err := dea.NumSV(context.Background(), y, d.GroupIndicator(), 20, 0.1, 1)
	require.NoError(t, err)
	assert.Equal(t, k, again)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dea.NumSV(ctx, y, d.GroupIndicator(), 20, 0.1, 1)
	assert.Equal(t, context.Canceled, err)
}

func TestSVAStep(t *testing.T) {
	s := dea.SVAStep(dea.DefaultOptions().SVA)
	d := simulated(t, 200, 2)

	out, err := s.Run(context.Background(), d, pipeline.Combination{dea.ParamSVAMethod: dea.SVANone, dea.ParamSVANumber: "2"})
	require.NoError(t, err)
	c := out.(*dea.Corrected)
	assert.Nil(t, c.Covariates)
	assert.Equal(t, 0, c.NumSV)

	out, err = s.Run(context.Background(), d, pipeline.Combination{dea.ParamSVAMethod: dea.SVASVD, dea.ParamSVANumber: "2"})
	require.NoError(t, err)
	m, err := s.Evaluate(d, out)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m["n.sv"])

	_, err = s.Run(context.Background(), d, pipeline.Combination{dea.ParamSVAMethod: dea.SVASVD, dea.ParamSVANumber: "two"})
	assert.Error(t, err)
}

func TestEvaluateTable(t *testing.T) {
	tbl := dea.Table{Rows: []dea.Row{
		{Gene: "g1", LogFC: 2, FDR: 0.001},
		{Gene: "g2", LogFC: 1, FDR: 0.2},
		{Gene: "g3", LogFC: 0.5, FDR: 0.03},
	}}
	truth := map[string]dataset.Truth{
		"g1": {Gene: "g1", IsDE: true, ExpectedLogFC: 2},
		"g2": {Gene: "g2", IsDE: true, ExpectedLogFC: 1},
		"g3": {Gene: "g3"},
		"g4": {Gene: "g4"},
	}
	m := dea.EvaluateTable(tbl, truth, dea.DefaultThresholds)

	assert.Equal(t, 1.0, m["TP@0.01"])
	assert.Equal(t, 0.0, m["FDR@0.01"])
	assert.Equal(t, 2.0, m["TN@0.01"])
	assert.Equal(t, 0.5, m["TPR@0.05"])
	assert.Equal(t, 0.5, m["FDR@0.05"])
	assert.Equal(t, 0.5, m["PPV@0.1"])
	assert.Equal(t, 1.0, m["FN@0.1"])
	assert.Equal(t, 3.0, m["n.tested"])
	assert.InDelta(t, 1, m["logFC.spearman"], 1e-12)
	assert.InDelta(t, 0.9819805, m["logFC.pearson"], 1e-6)
}

func TestPower(t *testing.T) {
	d := simulated(t, 500, 0)
	c := &dea.Corrected{Data: d, LogCPM: d.LogCPM()}
	for _, test := range []func(*dea.Corrected) (dea.Table, error){dea.LinearModel, dea.Welch} {
		tbl, err := test(c)
		require.NoError(t, err)
		m := dea.EvaluateTable(tbl, d.Truth, []float64{0.1})
		assert.Greater(t, m["TPR@0.1"], 0.5)
		assert.Greater(t, m["logFC.pearson"], 0.5)
	}
}

func TestDefinition(t *testing.T) {
	d, err := dea.NewDefinition(dea.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"filtering", "sva", "dea"}, d.StepNames())

	alts := dea.DefaultAlternatives()
	all, err := pipeline.Combinations(d, alts, nil)
	require.NoError(t, err)
	assert.Len(t, all, 24)

	cs, err := pipeline.Combinations(d, alts, dea.SkipRedundant(alts))
	require.NoError(t, err)
	assert.Len(t, cs, 16)
	for _, c := range cs {
		if c[dea.ParamSVAMethod] == dea.SVANone {
			assert.Equal(t, "1", c[dea.ParamSVANumber])
		}
	}
}

func TestBenchmark(t *testing.T) {
	def, err := dea.NewDefinition(dea.DefaultOptions())
	require.NoError(t, err)
	alts := dea.DefaultAlternatives()

	o := dataset.DefaultSimOptions()
	o.Genes = 300
	var datasets []pipeline.Dataset
	for i := uint64(1); i <= 2; i++ {
		o.Seed = i
		o.Name = fmt.Sprintf("sim%d", i)
		d, err := dataset.Simulate(o)
		require.NoError(t, err)
		datasets = append(datasets, pipeline.Dataset{Name: d.Name, Data: d})
	}

	r, err := pipeline.NewRunner(def, alts, dea.SkipRedundant(alts), pipeline.Threads(2))
	require.NoError(t, err)
	results, err := r.Run(context.Background(), datasets)
	require.NoError(t, err)
	require.Len(t, results.Records, 32)
	assert.Empty(t, results.Errors())

	tbl, err := results.Table("dea")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 32)
	assert.Contains(t, tbl.Metrics, "TPR@0.05")
	assert.Contains(t, tbl.Metrics, "FDR@0.01")

	sva, err := results.Table("sva")
	require.NoError(t, err)
	for _, row := range sva.Rows {
		if row.Combination[dea.ParamSVAMethod] == dea.SVASVD && row.Combination[dea.ParamSVANumber] == "2" {
			assert.Equal(t, 2.0, row.Value("n.sv"))
		}
	}

	mean, err := tbl.Summarise(pipeline.Mean)
	require.NoError(t, err)
	assert.Len(t, mean.Rows, 16)
}

func TestNumSVSettings(t *testing.T) {
	d := simulated(t, 200, 0)
	y := d.LogCPM().T()

	_, err := dea.NumSV(context.Background(), y, d.GroupIndicator(), 0, 0.1, 1)
	assert.Error(t, err)
	_, err = dea.NumSV(context.Background(), y, d.GroupIndicator(), 20, 0, 1)
	assert.Error(t, err)
	_, err = dea.NumSV(context.Background(), y, d.GroupIndicator(), 20, 1, 1)
	assert.Error(t, err)

	// The auto setting surfaces the error instead of using every component.
	o := dea.DefaultOptions().SVA
	o.Permutations = 0
	_, err = dea.SVAStep(o).Run(context.Background(), d, pipeline.Combination{dea.ParamSVAMethod: dea.SVASVD, dea.ParamSVANumber: dea.AutoNumSV})
	assert.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, dea.DefaultOptions().Validate())

	o := dea.DefaultOptions()
	o.SVA.Permutations = 0
	assert.Error(t, o.Validate())
	_, err := dea.NewDefinition(o)
	assert.Error(t, err)

	o = dea.DefaultOptions()
	o.SVA.Significance = 1.5
	assert.Error(t, o.Validate())

	o = dea.DefaultOptions()
	o.Thresholds = []float64{0.05, 0}
	assert.Error(t, o.Validate())
}

func TestOptionsFingerprint(t *testing.T) {
	o := dea.DefaultOptions()
	assert.Equal(t, o.Fingerprint(), dea.DefaultOptions().Fingerprint())

	changed := dea.DefaultOptions()
	changed.Thresholds = []float64{0.05}
	assert.NotEqual(t, o.Fingerprint(), changed.Fingerprint())

	changed = dea.DefaultOptions()
	changed.SVA.Seed = 2
	assert.NotEqual(t, o.Fingerprint(), changed.Fingerprint())
}
