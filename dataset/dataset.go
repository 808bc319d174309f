// Package dataset loads, simulates and transforms RNA-seq count datasets used as pipeline inputs.
package dataset

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Truth is the known differential expression status of a gene.
type Truth struct {
	Gene          string  `csv:"gene"`
	IsDE          bool    `csv:"is_de"`
	ExpectedLogFC float64 `csv:"expected_logfc"`
}

// Sample annotates a sample with the group it belongs to.
type Sample struct {
	Sample string `csv:"sample"`
	Group  string `csv:"group"`
}

// Dataset is a genes x samples count matrix with annotation.
type Dataset struct {
	Name    string
	Genes   []string
	Samples []string
	// Groups holds the group of each sample.
	Groups []string
	Counts *mat.Dense
	// Truth is keyed by gene and may be nil.
	Truth map[string]Truth
}

// Validate checks the dimensions of the dataset agree and that there are exactly two groups.
func (d *Dataset) Validate() error {
	if d.Counts == nil {
		return errors.Errorf("dataset %s has no counts", d.Name)
	}
	r, c := d.Counts.Dims()
	if r != len(d.Genes) {
		return errors.Errorf("dataset %s has %d genes but %d count rows", d.Name, len(d.Genes), r)
	}
	if c != len(d.Samples) || c != len(d.Groups) {
		return errors.Errorf("dataset %s has %d count columns, %d samples and %d group labels", d.Name, c, len(d.Samples), len(d.Groups))
	}
	levels := d.Levels()
	if len(levels) != 2 {
		return errors.Errorf("dataset %s must have exactly two groups, found %v", d.Name, levels)
	}
	for i, n := range d.GroupSizes() {
		if n < 2 {
			return errors.Errorf("dataset %s has fewer than two samples in group %s", d.Name, levels[i])
		}
	}
	return nil
}

// Levels returns the distinct groups sorted alphabetically. The first level is the reference.
func (d *Dataset) Levels() []string {
	seen := make(map[string]bool)
	var levels []string
	for _, g := range d.Groups {
		if !seen[g] {
			seen[g] = true
			levels = append(levels, g)
		}
	}
	sort.Strings(levels)
	return levels
}

// GroupSizes returns the number of samples in each level.
func (d *Dataset) GroupSizes() []int {
	levels := d.Levels()
	sizes := make([]int, len(levels))
	for _, g := range d.Groups {
		for i, l := range levels {
			if g == l {
				sizes[i]++
			}
		}
	}
	return sizes
}

// GroupIndicator returns 1 for samples outside the reference level and 0 otherwise.
func (d *Dataset) GroupIndicator() []float64 {
	ref := d.Levels()[0]
	x := make([]float64, len(d.Groups))
	for i, g := range d.Groups {
		if g != ref {
			x[i] = 1
		}
	}
	return x
}

// LibrarySizes returns the total count of each sample.
func (d *Dataset) LibrarySizes() []float64 {
	r, c := d.Counts.Dims()
	lib := make([]float64, c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			lib[j] += d.Counts.At(i, j)
		}
	}
	return lib
}

// CPM returns counts per million.
func (d *Dataset) CPM() *mat.Dense {
	lib := d.LibrarySizes()
	r, c := d.Counts.Dims()
	cpm := mat.NewDense(r, c, nil)
	cpm.Apply(func(i, j int, v float64) float64 {
		if lib[j] == 0 {
			return 0
		}
		return v / lib[j] * 1e6
	}, d.Counts)
	return cpm
}

// LogCPM returns log2 counts per million with a prior count of 0.5, as used by voom.
func (d *Dataset) LogCPM() *mat.Dense {
	lib := d.LibrarySizes()
	r, c := d.Counts.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return math.Log2((v + 0.5) / (lib[j] + 1) * 1e6)
	}, d.Counts)
	return out
}

// MedianLibrarySize returns the median of the library sizes.
func (d *Dataset) MedianLibrarySize() float64 {
	m, err := stats.Median(d.LibrarySizes())
	if err != nil {
		return 0
	}
	return m
}

// Subset returns a new dataset containing only the genes at the given row indices.
func (d *Dataset) Subset(rows []int) *Dataset {
	_, c := d.Counts.Dims()
	s := &Dataset{
		Name:    d.Name,
		Samples: d.Samples,
		Groups:  d.Groups,
		Truth:   d.Truth,
		Genes:   make([]string, len(rows)),
	}
	if len(rows) == 0 {
		s.Counts = &mat.Dense{}
		return s
	}
	s.Counts = mat.NewDense(len(rows), c, nil)
	for i, row := range rows {
		s.Genes[i] = d.Genes[row]
		s.Counts.SetRow(i, mat.Row(nil, row, d.Counts))
	}
	return s
}

// NumGenes returns the number of genes in the dataset.
func (d *Dataset) NumGenes() int {
	return len(d.Genes)
}

// DETruth returns, for every gene in the truth table, whether it is differentially expressed.
func (d *Dataset) DETruth() map[string]bool {
	t := make(map[string]bool, len(d.Truth))
	for g, tr := range d.Truth {
		t[g] = tr.IsDE
	}
	return t
}
