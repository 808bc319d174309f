package pipeline_test

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiluheihei/pipeComp/pipeline"
)

func record(dataset string, x string, value float64) pipeline.Record {
	return pipeline.Record{
		Dataset:     dataset,
		Combination: pipeline.Combination{"x": x},
		Steps: []pipeline.StepRecord{
			{Step: "s", Metrics: map[string]float64{"value": value}, Elapsed: 2 * time.Second},
		},
	}
}

func testResults() *pipeline.Results {
	return &pipeline.Results{
		RunID:      "run",
		Steps:      []string{"s"},
		Parameters: []string{"x"},
		Records: []pipeline.Record{
			record("d1", "a", 1),
			record("d1", "b", 2),
			record("d2", "a", 3),
			record("d2", "b", 4),
			{Dataset: "d3", Combination: pipeline.Combination{"x": "a"}, Error: "broken"},
		},
	}
}

func TestTable(t *testing.T) {
	r := testResults()
	tbl, err := r.Table("s")
	require.NoError(t, err)
	assert.Equal(t, "s", tbl.Name)
	assert.Equal(t, []string{"value"}, tbl.Metrics)
	require.Len(t, tbl.Rows, 4)
	assert.Equal(t, 3.0, tbl.Rows[2].Value("value"))
	assert.True(t, math.IsNaN(tbl.Rows[2].Value("missing")))

	_, err = r.Table("missing")
	assert.Error(t, err)

	e := r.Elapsed()
	assert.Equal(t, []string{"s"}, e.Metrics)
	require.Len(t, e.Rows, 4)
	assert.Equal(t, 2.0, e.Rows[0].Value("s"))
}

func TestSummarise(t *testing.T) {
	tbl, err := testResults().Table("s")
	require.NoError(t, err)

	mean, err := tbl.Summarise(pipeline.Mean)
	require.NoError(t, err)
	require.Len(t, mean.Rows, 2)
	assert.Equal(t, "", mean.Rows[0].Dataset)
	assert.Equal(t, pipeline.Combination{"x": "a"}, mean.Rows[0].Combination)
	assert.Equal(t, 2.0, mean.Rows[0].Value("value"))
	assert.Equal(t, 3.0, mean.Rows[1].Value("value"))

	sd, err := tbl.Summarise(pipeline.StdDev)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, sd.Rows[0].Value("value"), 1e-12)
}

func TestMerge(t *testing.T) {
	r := testResults()
	other := &pipeline.Results{
		Steps:      []string{"s"},
		Parameters: []string{"x"},
		Records: []pipeline.Record{
			record("d3", "a", 5),
			record("d3", "b", 6),
		},
	}
	require.NoError(t, r.Merge(other))
	assert.Len(t, r.Records, 6)
	assert.Empty(t, r.Errors())
	assert.Equal(t, []string{"d1", "d2", "d3"}, r.Datasets())

	err := r.Merge(&pipeline.Results{Steps: []string{"t"}})
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	r := testResults()
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, r.Save(path))

	loaded, err := pipeline.LoadResults(path)
	require.NoError(t, err)
	assert.Equal(t, r, loaded)

	_, err = pipeline.LoadResults(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
