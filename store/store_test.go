package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiluheihei/pipeComp/pipeline"
	"github.com/yiluheihei/pipeComp/store"
)

func TestDiskStore(t *testing.T) {
	s := store.NewDiskStore(t.TempDir(), "v1")
	c := pipeline.Combination{"x": "1", "y": "a"}

	_, ok, err := s.Get("d", c)
	require.NoError(t, err)
	assert.False(t, ok)

	r := pipeline.Record{
		Dataset:     "d",
		Index:       3,
		Combination: c,
		Steps: []pipeline.StepRecord{
			{Step: "s", Metrics: map[string]float64{"TPR@0.05": 0.8}, Elapsed: time.Millisecond},
		},
	}
	require.NoError(t, s.Set(r))

	got, ok, err := s.Get("d", pipeline.Combination{"y": "a", "x": "1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)

	_, ok, err = s.Get("other", c)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear())
	_, ok, err = s.Get("d", c)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlockTransform(t *testing.T) {
	assert.Equal(t, []string{"abcdefgh", "ijklmnop"}, store.BlockTransform(8)("abcdefghijklmnopqr"))
	assert.Len(t, store.BlockTransform(8)(store.Key("v1", "d", pipeline.Combination{"x": "1"})), 8)
}

func TestDiskStoreFingerprint(t *testing.T) {
	dir := t.TempDir()
	c := pipeline.Combination{"x": "1"}
	require.NoError(t, store.NewDiskStore(dir, "v1").Set(pipeline.Record{Dataset: "d", Combination: c}))

	_, ok, err := store.NewDiskStore(dir, "v2").Get("d", c)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.NewDiskStore(dir, "v1").Get("d", c)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NotEqual(t, store.Key("v1", "d", c), store.Key("v2", "d", c))
}
