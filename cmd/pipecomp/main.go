package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	pipecomp "github.com/yiluheihei/pipeComp"
	"github.com/yiluheihei/pipeComp/dataset"
	"github.com/yiluheihei/pipeComp/dea"
	"github.com/yiluheihei/pipeComp/eval"
	"github.com/yiluheihei/pipeComp/output"
	"github.com/yiluheihei/pipeComp/pipeline"
	"github.com/yiluheihei/pipeComp/store"
	"go.uber.org/zap"
)

var (
	name    = "pipecomp"
	version = "16.Oct.2026"
)

type args struct {
	Datasets       []string `help:"Dataset directories containing counts.csv, samples.csv and truth.csv (local or gs://)" arg:"positional"`
	Config         string   `help:"YAML experiment file" arg:"-c"`
	Simulate       int      `help:"Number of datasets to simulate instead of loading them" arg:"-s"`
	WriteSimulated string   `help:"Directory to write simulated datasets to" arg:"--write-simulated"`
	Threads        int      `help:"Number of datasets processed concurrently" arg:"-t"`
	Output         string   `help:"Prefix of output files" arg:"-o"`
	Cache          string   `help:"Directory of the store used to resume interrupted runs" arg:"--cache"`
	Plot           string   `help:"Path of the TPR vs FDR plot (.png or .svg)" arg:"-p"`
	ElapsedPlot    string   `help:"Path of the elapsed time plot (.png or .svg)" arg:"--elapsed-plot"`
	Stop           bool     `help:"Stop at the first failing combination instead of skipping it" arg:"--stop"`
	Debug          bool     `help:"Verbose logging" arg:"-d"`
}

func (args) Version() string {
	return version
}

func (args) Description() string {
	return fmt.Sprintf(`%s
benchmark differential expression analysis pipelines
# %s`, name, version)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

func loadDatasets(ctx context.Context, args args, c config, logger *zap.Logger) ([]pipeline.Dataset, error) {
	var datasets []pipeline.Dataset
	if args.Simulate > 0 {
		for i := 0; i < args.Simulate; i++ {
			d, err := dataset.Simulate(c.simOptions(fmt.Sprintf("sim%d", i+1), c.Simulation.Seed+uint64(i)))
			if err != nil {
				return nil, err
			}
			if len(args.WriteSimulated) > 0 {
				dir := filepath.Join(args.WriteSimulated, d.Name)
				if err := d.Write(dir); err != nil {
					return nil, err
				}
				logger.Info("wrote simulated dataset", zap.String("path", dir))
			}
			datasets = append(datasets, pipeline.Dataset{Name: d.Name, Data: d})
		}
		return datasets, nil
	}

	var client *storage.Client
	for _, path := range args.Datasets {
		if dataset.IsGoogleStorage(path) && client == nil {
			var err error
			client, err = storage.NewClient(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "could not create google storage client")
			}
			defer client.Close()
		}
	}
	for _, path := range args.Datasets {
		d, err := dataset.Load(ctx, path, client)
		if err != nil {
			return nil, err
		}
		if d.Truth == nil {
			logger.Warn("dataset has no truth, it will not be evaluated", zap.String("dataset", d.Name))
		}
		logger.Info("loaded dataset",
			zap.String("dataset", d.Name),
			zap.Int("genes", d.NumGenes()),
			zap.Int("samples", len(d.Samples)))
		datasets = append(datasets, pipeline.Dataset{Name: d.Name, Data: d})
	}
	return datasets, nil
}

func main() {
	var args args
	p := arg.MustParse(&args)
	if len(args.Datasets) == 0 && args.Simulate == 0 {
		p.Fail("either dataset directories or --simulate must be given")
	}

	logger, err := newLogger(args.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	c, err := loadConfig(args.Config)
	if err != nil {
		logger.Fatal("could not load configuration", zap.Error(err))
	}
	if args.Threads > 0 {
		c.Threads = args.Threads
	}
	if args.Stop {
		c.SkipErrors = false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	datasets, err := loadDatasets(ctx, args, c, logger)
	if err != nil {
		logger.Fatal("could not load datasets", zap.Error(err))
	}

	def, err := dea.NewDefinition(c.deaOptions())
	if err != nil {
		logger.Fatal("could not create pipeline", zap.Error(err))
	}
	fmt.Print(def)

	opts := []pipeline.Option{pipeline.Threads(c.Threads)}
	if c.SkipErrors {
		opts = append(opts, pipeline.SkipErrors())
	}
	if len(args.Cache) > 0 {
		opts = append(opts, pipeline.WithStore(store.NewDiskStore(args.Cache, c.deaOptions().Fingerprint())))
	}

	components := []func() interface{}{
		pipecomp.Alternatives(c.Alternatives),
		pipecomp.RunnerOptions(opts...),
		pipecomp.Logger(logger),
	}
	if c.SkipRedundant {
		components = append(components, pipecomp.Filter(dea.SkipRedundant(c.Alternatives)))
	}
	if len(args.Output) > 0 {
		components = append(components, pipecomp.Output(args.Output, true, output.CsvFormat, output.JsonFormat))
	}
	if len(args.Plot) > 0 {
		components = append(components, pipecomp.FDRTPR(args.Plot, "dea", c.Thresholds))
	}
	if len(args.ElapsedPlot) > 0 {
		components = append(components, pipecomp.Elapsed(args.ElapsedPlot))
	}

	e := pipecomp.NewExperiment(def, components...)
	r, err := e.Runner()
	if err != nil {
		logger.Fatal("invalid experiment", zap.Error(err))
	}

	bar := pb.StartNew(len(datasets) * len(r.Combinations))
	e.Progress = func(pipeline.Record) {
		bar.Increment()
	}
	results, err := e.ExecuteRunner(ctx, r, datasets)
	bar.Finish()
	if err != nil {
		logger.Fatal("benchmark failed", zap.Error(err))
	}
	for _, rec := range results.Errors() {
		logger.Warn("combination failed",
			zap.String("dataset", rec.Dataset),
			zap.String("combination", rec.Combination.Key()),
			zap.String("error", rec.Error))
	}

	t, err := results.Table("dea")
	if err != nil {
		logger.Fatal("could not build results table", zap.Error(err))
	}
	t, err = t.Summarise(pipeline.Mean)
	if err != nil {
		logger.Fatal("could not summarise results", zap.Error(err))
	}
	metrics := []string{"logFC.spearman"}
	for _, th := range c.Thresholds {
		metrics = append(metrics, eval.AtThreshold(eval.FDR.Name(), th), eval.AtThreshold(eval.TPR.Name(), th))
	}
	s, err := output.TextTableFormatter(metrics...)(t)
	if err != nil {
		logger.Fatal("could not format results", zap.Error(err))
	}
	fmt.Print(s)
}
