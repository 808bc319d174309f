// Package pipecomp provides a framework for benchmarking alternative configurations of analysis
// pipelines. An experiment couples a pipeline definition with the alternatives of its parameters,
// runs every combination over a set of datasets and writes the evaluation of each step as tables
// and plots.
package pipecomp

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/output"
	"github.com/yiluheihei/pipeComp/pipeline"
	"go.uber.org/zap"
)

// Experiment contains all the information for benchmarking a pipeline.
type Experiment struct {
	Definition    *pipeline.Definition
	Alternatives  pipeline.Alternatives
	Filter        pipeline.CombinationFilter
	RunnerOptions []pipeline.Option
	Output        OutputConfiguration
	Plots         []PlotConfiguration
	Progress      func(pipeline.Record)

	logger *zap.Logger
}

// OutputConfiguration specifies where and how results are written.
type OutputConfiguration struct {
	// Prefix is prepended to every output file, e.g. "out/bench" gives "out/bench.results.json".
	Prefix  string
	Formats []output.TableFormat
	// Summarise adds a table per step holding the mean of each metric across datasets.
	Summarise bool
}

// PlotKind selects what a plot shows.
type PlotKind int

const (
	// FDRTPRPlot plots TPR against observed FDR at the thresholds of a step.
	FDRTPRPlot PlotKind = iota
	// ElapsedPlot plots the time spent by each combination.
	ElapsedPlot
)

// PlotConfiguration specifies a plot to write.
type PlotConfiguration struct {
	Kind       PlotKind
	Path       string
	Step       string
	Thresholds []float64
}

// Alternatives sets the alternatives of the parameters.
func Alternatives(alternatives pipeline.Alternatives) func() interface{} {
	return func() interface{} {
		return alternatives
	}
}

// Filter restricts which combinations are run.
func Filter(filter pipeline.CombinationFilter) func() interface{} {
	return func() interface{} {
		return filter
	}
}

// RunnerOptions configures the runner, e.g. the number of threads.
func RunnerOptions(opts ...pipeline.Option) func() interface{} {
	return func() interface{} {
		return opts
	}
}

// Output configures the files results are written to.
func Output(prefix string, summarise bool, formats ...output.TableFormat) func() interface{} {
	return func() interface{} {
		return OutputConfiguration{Prefix: prefix, Formats: formats, Summarise: summarise}
	}
}

// FDRTPR adds a plot of TPR against observed FDR of the given step, averaged over datasets.
func FDRTPR(path, step string, thresholds []float64) func() interface{} {
	return func() interface{} {
		return PlotConfiguration{Kind: FDRTPRPlot, Path: path, Step: step, Thresholds: thresholds}
	}
}

// Elapsed adds a plot of the time spent by each combination.
func Elapsed(path string) func() interface{} {
	return func() interface{} {
		return PlotConfiguration{Kind: ElapsedPlot, Path: path}
	}
}

// Progress sets a function called with every completed record.
func Progress(f func(pipeline.Record)) func() interface{} {
	return func() interface{} {
		return f
	}
}

// Logger sets the logger of the experiment and its runner.
func Logger(l *zap.Logger) func() interface{} {
	return func() interface{} {
		return l
	}
}

// NewExperiment creates a new experiment for the pipeline definition. The alternatives are
// required; other components are provided via the optional functional arguments.
func NewExperiment(d *pipeline.Definition, components ...func() interface{}) Experiment {
	e := Experiment{
		Definition: d,
		logger:     zap.NewNop(),
	}

	for _, component := range components {
		val := component()
		switch v := val.(type) {
		case pipeline.Alternatives:
			e.Alternatives = v
		case pipeline.CombinationFilter:
			e.Filter = v
		case []pipeline.Option:
			e.RunnerOptions = append(e.RunnerOptions, v...)
		case OutputConfiguration:
			e.Output = v
		case PlotConfiguration:
			e.Plots = append(e.Plots, v)
		case func(pipeline.Record):
			e.Progress = v
		case *zap.Logger:
			if v != nil {
				e.logger = v
			}
		}
	}

	return e
}

// Runner creates the runner of the experiment.
func (e Experiment) Runner() (*pipeline.Runner, error) {
	if e.Definition == nil {
		return nil, errors.New("experiment has no pipeline definition")
	}
	opts := append([]pipeline.Option{pipeline.Logger(e.logger)}, e.RunnerOptions...)
	return pipeline.NewRunner(e.Definition, e.Alternatives, e.Filter, opts...)
}

// Execute runs every combination over the datasets and writes the configured outputs. When the
// run stops early, the partial results are still written and the error is returned.
func (e Experiment) Execute(ctx context.Context, datasets []pipeline.Dataset) (*pipeline.Results, error) {
	r, err := e.Runner()
	if err != nil {
		return nil, err
	}
	return e.ExecuteRunner(ctx, r, datasets)
}

// ExecuteRunner is Execute with a runner already created by Runner.
func (e Experiment) ExecuteRunner(ctx context.Context, r *pipeline.Runner, datasets []pipeline.Dataset) (*pipeline.Results, error) {
	e.logger.Info("running experiment", zap.String("run", r.ID), zap.Int("combinations", len(r.Combinations)))

	results, runErr := r.Collect(ctx, datasets, e.Progress)
	if len(results.Records) == 0 && runErr != nil {
		return results, runErr
	}
	if err := e.Write(results); err != nil {
		if runErr != nil {
			e.logger.Error("could not write partial results", zap.Error(err))
			return results, runErr
		}
		return results, err
	}
	return results, runErr
}

// Write outputs the results as configured.
func (e Experiment) Write(results *pipeline.Results) error {
	if len(e.Output.Prefix) > 0 {
		if err := e.writeTables(results); err != nil {
			return err
		}
	}
	for _, p := range e.Plots {
		if err := e.writePlot(results, p); err != nil {
			return err
		}
	}
	return nil
}

func (e Experiment) writeTables(results *pipeline.Results) error {
	prefix := e.Output.Prefix
	path := prefix + ".results.json"
	if err := results.Save(path); err != nil {
		return err
	}
	e.logger.Info("wrote results", zap.String("path", path))

	tables := []pipeline.Table{results.Elapsed()}
	for _, step := range results.Steps {
		t, err := results.Table(step)
		if err != nil {
			return err
		}
		if len(t.Metrics) == 0 {
			continue
		}
		tables = append(tables, t)
		if e.Output.Summarise {
			s, err := t.Summarise(pipeline.Mean)
			if err != nil {
				return err
			}
			s.Name = step + ".mean"
			tables = append(tables, s)
		}
	}

	for _, t := range tables {
		for _, f := range e.Output.Formats {
			s, err := f.Formatter(t)
			if err != nil {
				return errors.Wrapf(err, "could not format table %s", t.Name)
			}
			path := prefix + "." + t.Name + f.Extension
			if err := ioutil.WriteFile(path, []byte(s), 0644); err != nil {
				return errors.Wrapf(err, "could not write %s", path)
			}
			e.logger.Info("wrote table", zap.String("path", path))
		}
	}
	return nil
}

func (e Experiment) writePlot(results *pipeline.Results, p PlotConfiguration) error {
	f, err := os.Create(p.Path)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", p.Path)
	}
	format := output.FormatFromPath(p.Path)

	switch p.Kind {
	case FDRTPRPlot:
		var t pipeline.Table
		t, err = results.Table(p.Step)
		if err == nil {
			t, err = t.Summarise(pipeline.Mean)
		}
		if err == nil {
			err = output.PlotFDRTPR(t, p.Thresholds, f, format)
		}
	case ElapsedPlot:
		err = output.PlotElapsed(results.Elapsed(), f, format)
	default:
		err = errors.Errorf("unknown plot kind %d", p.Kind)
	}

	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "could not plot %s", p.Path)
	}
	e.logger.Info("wrote plot", zap.String("path", p.Path))
	return nil
}
