package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/csimplestring/go-csv/detector"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// File names of the components of a dataset directory.
const (
	CountsFile  = "counts.csv"
	SamplesFile = "samples.csv"
	TruthFile   = "truth.csv"
)

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return ','
}

func newReader(b []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = DetermineDelimiter(bytes.NewReader(b))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r
}

// Load reads a dataset from a directory containing counts.csv, samples.csv and optionally
// truth.csv. The directory may be a gs:// path, in which case client must be set. The dataset is
// named after the directory.
func Load(ctx context.Context, dir string, client *storage.Client) (*Dataset, error) {
	b, err := ReadFile(ctx, Join(dir, CountsFile), client)
	if err != nil {
		return nil, err
	}
	d, err := ReadCounts(b)
	if err != nil {
		return nil, errors.Wrap(err, Join(dir, CountsFile))
	}
	d.Name = path.Base(strings.TrimSuffix(dir, "/"))

	b, err = ReadFile(ctx, Join(dir, SamplesFile), client)
	if err != nil {
		return nil, err
	}
	samples, err := ReadSamples(b)
	if err != nil {
		return nil, errors.Wrap(err, Join(dir, SamplesFile))
	}
	if err := d.annotate(samples); err != nil {
		return nil, errors.Wrap(err, Join(dir, SamplesFile))
	}

	b, err = ReadFile(ctx, Join(dir, TruthFile), client)
	switch {
	case errors.Cause(err) == ErrNotExist:
		// Datasets without a truth can still be run, but not evaluated.
	case err != nil:
		return nil, err
	default:
		truth, err := ReadTruth(b)
		if err != nil {
			return nil, errors.Wrap(err, Join(dir, TruthFile))
		}
		d.Truth = truth
	}

	return d, d.Validate()
}

// ReadCounts parses a count matrix. The first row holds the sample identifiers (its first cell is
// ignored) and every following row starts with a gene identifier.
func ReadCounts(b []byte) (*Dataset, error) {
	r := newReader(b)
	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "could not read header")
	}
	if len(header) < 2 {
		return nil, errors.New("count matrix has no sample columns")
	}
	d := &Dataset{Samples: header[1:]}
	n := len(d.Samples)

	var data []float64
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if len(record) != n+1 {
			return nil, errors.Errorf("line %d: expected %d columns, found %d", line, n+1, len(record))
		}
		d.Genes = append(d.Genes, record[0])
		for _, cell := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			if v < 0 {
				return nil, errors.Errorf("line %d: negative count %v", line, v)
			}
			data = append(data, v)
		}
	}
	if len(d.Genes) == 0 {
		return nil, errors.New("count matrix has no genes")
	}
	d.Counts = mat.NewDense(len(d.Genes), n, data)
	return d, nil
}

// ReadSamples parses a sample annotation table with "sample" and "group" columns.
func ReadSamples(b []byte) ([]Sample, error) {
	var samples []Sample
	if err := gocsv.UnmarshalCSV(newReader(b), &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// ReadTruth parses a truth table with "gene", "is_de" and "expected_logfc" columns.
func ReadTruth(b []byte) (map[string]Truth, error) {
	var rows []Truth
	if err := gocsv.UnmarshalCSV(newReader(b), &rows); err != nil {
		return nil, err
	}
	truth := make(map[string]Truth, len(rows))
	for _, t := range rows {
		if _, ok := truth[t.Gene]; ok {
			return nil, errors.Errorf("gene %s appears more than once", t.Gene)
		}
		truth[t.Gene] = t
	}
	return truth, nil
}

func (d *Dataset) annotate(samples []Sample) error {
	groups := make(map[string]string, len(samples))
	for _, s := range samples {
		groups[s.Sample] = s.Group
	}
	d.Groups = make([]string, len(d.Samples))
	for i, s := range d.Samples {
		g, ok := groups[s]
		if !ok {
			return errors.Errorf("sample %s has no group", s)
		}
		d.Groups[i] = g
	}
	return nil
}

// Write stores the dataset as a directory that Load can read.
func (d *Dataset) Write(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "could not create %s", dir)
	}

	f, err := os.Create(filepath.Join(dir, CountsFile))
	if err != nil {
		return errors.Wrap(err, "could not create count file")
	}
	w := csv.NewWriter(f)
	w.Write(append([]string{"gene"}, d.Samples...))
	for i, g := range d.Genes {
		record := make([]string, len(d.Samples)+1)
		record[0] = g
		for j := range d.Samples {
			record[j+1] = strconv.FormatFloat(d.Counts.At(i, j), 'f', -1, 64)
		}
		w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "could not write counts")
	}
	if err := f.Close(); err != nil {
		return err
	}

	samples := make([]Sample, len(d.Samples))
	for i := range d.Samples {
		samples[i] = Sample{Sample: d.Samples[i], Group: d.Groups[i]}
	}
	if err := writeRecords(filepath.Join(dir, SamplesFile), &samples); err != nil {
		return err
	}

	if d.Truth == nil {
		return nil
	}
	truth := make([]Truth, 0, len(d.Truth))
	for _, g := range d.Genes {
		if t, ok := d.Truth[g]; ok {
			truth = append(truth, t)
		}
	}
	return writeRecords(filepath.Join(dir, TruthFile), &truth)
}

func writeRecords(path string, records interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", path)
	}
	if err := gocsv.MarshalFile(records, f); err != nil {
		f.Close()
		return errors.Wrapf(err, "could not write %s", path)
	}
	return f.Close()
}
