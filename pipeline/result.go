package pipeline

import (
	"encoding/json"
	"io/ioutil"
	"math"
	"os"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// ResultType is the type of result being returned through a pipeline channel.
type ResultType uint8

const (
	// Evaluation is a completed combination of a dataset.
	Evaluation ResultType = iota
	// Error indicates an error was raised.
	Error
	// Done indicates the pipeline has completed.
	Done
)

// Result is the output of a pipeline runner.
type Result struct {
	Record Record
	Type   ResultType
	Error  error
}

// StepRecord holds the evaluation of a single step.
type StepRecord struct {
	Step    string             `json:"step"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Elapsed time.Duration      `json:"elapsed"`
}

// Record is the outcome of running one combination on one dataset.
type Record struct {
	Dataset     string       `json:"dataset"`
	Index       int          `json:"index"`
	Combination Combination  `json:"combination"`
	Steps       []StepRecord `json:"steps"`
	Error       string       `json:"error,omitempty"`
	// Resumed is set when the record was loaded from a store instead of computed.
	Resumed bool `json:"-"`
}

// Failed reports whether the combination raised an error.
func (r Record) Failed() bool {
	return len(r.Error) > 0
}

// Step returns the record of the named step.
func (r Record) Step(name string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Results contains every record produced by a run.
type Results struct {
	RunID      string   `json:"run_id"`
	Steps      []string `json:"steps"`
	Parameters []string `json:"parameters"`
	Records    []Record `json:"records"`
}

func (r *Results) sort(datasets []string) {
	order := make(map[string]int, len(datasets))
	for i, d := range datasets {
		order[d] = i
	}
	sort.SliceStable(r.Records, func(i, j int) bool {
		a, b := r.Records[i], r.Records[j]
		if order[a.Dataset] != order[b.Dataset] {
			return order[a.Dataset] < order[b.Dataset]
		}
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		return a.Index < b.Index
	})
}

// Datasets returns the dataset names in the order they first appear.
func (r *Results) Datasets() []string {
	var names []string
	seen := make(map[string]bool)
	for _, rec := range r.Records {
		if !seen[rec.Dataset] {
			seen[rec.Dataset] = true
			names = append(names, rec.Dataset)
		}
	}
	return names
}

// Errors returns the records that failed.
func (r *Results) Errors() []Record {
	var failed []Record
	for _, rec := range r.Records {
		if rec.Failed() {
			failed = append(failed, rec)
		}
	}
	return failed
}

// Merge combines the records of other results into r. Records for a dataset and combination that
// is already present are replaced. All results must come from the same pipeline.
func (r *Results) Merge(others ...*Results) error {
	pos := make(map[string]int, len(r.Records))
	for i, rec := range r.Records {
		pos[rec.Dataset+"\x00"+rec.Combination.Key()] = i
	}
	for _, o := range others {
		if !sameStrings(r.Steps, o.Steps) {
			return errors.Errorf("cannot merge results of different pipelines (%v and %v)", r.Steps, o.Steps)
		}
		for _, rec := range o.Records {
			k := rec.Dataset + "\x00" + rec.Combination.Key()
			if i, ok := pos[k]; ok {
				r.Records[i] = rec
				continue
			}
			pos[k] = len(r.Records)
			r.Records = append(r.Records, rec)
		}
	}
	return nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Row is a line of a table, keyed by dataset and combination.
type Row struct {
	Dataset     string             `json:"dataset"`
	Combination Combination        `json:"combination"`
	Values      map[string]float64 `json:"values"`
}

// Table holds metric values with one row per dataset and combination.
type Table struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
	Metrics    []string `json:"metrics"`
	Rows       []Row    `json:"rows"`
}

// Value returns the value of a metric in a row, or NaN when it is missing.
func (r Row) Value(metric string) float64 {
	if v, ok := r.Values[metric]; ok {
		return v
	}
	return math.NaN()
}

// Table returns the evaluation metrics of a step. Failed records are omitted.
func (r *Results) Table(step string) (Table, error) {
	found := false
	for _, s := range r.Steps {
		if s == step {
			found = true
		}
	}
	if !found {
		return Table{}, errors.Wrap(ErrUnknownStep, step)
	}

	t := Table{Name: step, Parameters: r.Parameters}
	metrics := make(map[string]bool)
	for _, rec := range r.Records {
		if rec.Failed() {
			continue
		}
		s, ok := rec.Step(step)
		if !ok {
			continue
		}
		vals := make(map[string]float64, len(s.Metrics))
		for k, v := range s.Metrics {
			vals[k] = v
			metrics[k] = true
		}
		t.Rows = append(t.Rows, Row{Dataset: rec.Dataset, Combination: rec.Combination, Values: vals})
	}
	for m := range metrics {
		t.Metrics = append(t.Metrics, m)
	}
	sort.Strings(t.Metrics)
	return t, nil
}

// Elapsed returns a table of the time, in seconds, spent in each step.
func (r *Results) Elapsed() Table {
	t := Table{Name: "elapsed", Parameters: r.Parameters, Metrics: append([]string(nil), r.Steps...)}
	for _, rec := range r.Records {
		if rec.Failed() {
			continue
		}
		vals := make(map[string]float64, len(rec.Steps))
		for _, s := range rec.Steps {
			vals[s.Step] = s.Elapsed.Seconds()
		}
		t.Rows = append(t.Rows, Row{Dataset: rec.Dataset, Combination: rec.Combination, Values: vals})
	}
	return t
}

// SummaryStatistic reduces the values of a metric across datasets.
type SummaryStatistic func(stats.Float64Data) (float64, error)

var (
	// Mean is the arithmetic mean.
	Mean SummaryStatistic = stats.Mean
	// Median is the median.
	Median SummaryStatistic = stats.Median
	// StdDev is the sample standard deviation.
	StdDev SummaryStatistic = stats.StandardDeviationSample
)

// Summarise aggregates a table across datasets, producing one row per combination whose values
// are the statistic of each metric. NaN values are ignored. The dataset of each row is empty.
func (t Table) Summarise(stat SummaryStatistic) (Table, error) {
	type group struct {
		c      Combination
		values map[string][]float64
	}
	var (
		order  []string
		groups = make(map[string]*group)
	)
	for _, row := range t.Rows {
		k := row.Combination.Key()
		g, ok := groups[k]
		if !ok {
			g = &group{c: row.Combination, values: make(map[string][]float64)}
			groups[k] = g
			order = append(order, k)
		}
		for m, v := range row.Values {
			if !math.IsNaN(v) {
				g.values[m] = append(g.values[m], v)
			}
		}
	}

	s := Table{Name: t.Name, Parameters: t.Parameters, Metrics: t.Metrics}
	for _, k := range order {
		g := groups[k]
		vals := make(map[string]float64, len(g.values))
		for m, v := range g.values {
			x, err := stat(v)
			if err != nil {
				// Not enough values for this statistic (e.g. sd of one value).
				vals[m] = math.NaN()
				continue
			}
			vals[m] = x
		}
		s.Rows = append(s.Rows, Row{Combination: g.c, Values: vals})
	}
	return s, nil
}

// Save writes the results as JSON to the file at path.
func (r *Results) Save(path string) error {
	b, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return errors.Wrap(err, "could not encode results")
	}
	return errors.Wrapf(ioutil.WriteFile(path, b, 0644), "could not write %s", path)
}

// LoadResults reads results previously written with Save.
func LoadResults(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer f.Close()
	var r Results
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", path)
	}
	return &r, nil
}
