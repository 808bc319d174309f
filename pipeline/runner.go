package pipeline

import (
	"context"
	"math"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dataset is a named input to a pipeline. Data is passed to the first step.
type Dataset struct {
	Name string
	Data interface{}
}

// Runner executes every combination of a pipeline's alternatives over datasets.
type Runner struct {
	ID           string
	Definition   *Definition
	Combinations []Combination

	threads    int
	skipErrors bool
	cacheSize  int
	store      Store
	logger     *zap.Logger
}

// Option configures a runner.
type Option func(*Runner)

// Threads sets how many datasets are processed concurrently.
func Threads(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.threads = n
		}
	}
}

// SkipErrors records failing combinations instead of stopping the run.
func SkipErrors() Option {
	return func(r *Runner) {
		r.skipErrors = true
	}
}

// CacheSize sets the number of intermediate step outputs kept per dataset.
func CacheSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// WithStore persists completed records in s and skips combinations already in it.
func WithStore(s Store) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// Logger sets the logger of the runner.
func Logger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner validates the alternatives against the definition and enumerates the combinations
// to run. filter may be nil.
func NewRunner(d *Definition, alternatives Alternatives, filter CombinationFilter, opts ...Option) (*Runner, error) {
	combinations, err := Combinations(d, alternatives, filter)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		ID:           uuid.New().String(),
		Definition:   d,
		Combinations: combinations,
		threads:      1,
		cacheSize:    64,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cacheSize < len(d.Steps) {
		r.cacheSize = len(d.Steps)
	}
	return r, nil
}

// Execute runs the pipeline over the datasets, sending a result for every dataset and
// combination through c. An Error result is sent if the run stops early, and a Done result is
// always sent last before c is closed.
func (r *Runner) Execute(ctx context.Context, datasets []Dataset, c chan<- Result) {
	defer close(c)

	r.logger.Info("starting pipeline",
		zap.String("run", r.ID),
		zap.Int("datasets", len(datasets)),
		zap.Int("combinations", len(r.Combinations)),
		zap.Int("threads", r.threads))

	seen := make(map[string]bool, len(datasets))
	for _, ds := range datasets {
		if seen[ds.Name] {
			c <- Result{Type: Error, Error: errors.Errorf("duplicate dataset name %q", ds.Name)}
			c <- Result{Type: Done}
			return
		}
		seen[ds.Name] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.threads)
	for _, ds := range datasets {
		ds := ds
		g.Go(func() error {
			return r.executeDataset(gctx, ds, c)
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error("pipeline stopped", zap.String("run", r.ID), zap.Error(err))
		c <- Result{Type: Error, Error: err}
	} else {
		r.logger.Info("pipeline completed", zap.String("run", r.ID))
	}
	c <- Result{Type: Done}
}

func (r *Runner) executeDataset(ctx context.Context, ds Dataset, c chan<- Result) error {
	cache, err := newStepCache(r.cacheSize)
	if err != nil {
		return err
	}
	log := r.logger.With(zap.String("dataset", ds.Name))
	log.Info("starting dataset")
	start := time.Now()

	for i, comb := range r.Combinations {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.store != nil {
			rec, ok, err := r.store.Get(ds.Name, comb)
			if err != nil {
				return errors.Wrapf(err, "could not read stored record of %s", ds.Name)
			}
			if ok {
				log.Debug("already completed combination, so skipping it", zap.String("combination", comb.Key()))
				rec.Index = i
				rec.Resumed = true
				if err := send(ctx, c, Result{Type: Evaluation, Record: rec}); err != nil {
					return err
				}
				continue
			}
		}

		rec, err := r.executeCombination(ctx, ds, i, comb, cache)
		if err != nil {
			if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded || !r.skipErrors {
				return err
			}
			log.Warn("combination failed",
				zap.String("combination", comb.Key()),
				zap.Error(err),
				zap.String("stack", goerrors.Wrap(err, 0).ErrorStack()))
			rec.Error = err.Error()
		} else if r.store != nil {
			if err := r.store.Set(rec); err != nil {
				return errors.Wrapf(err, "could not store record of %s", ds.Name)
			}
		}

		if err := send(ctx, c, Result{Type: Evaluation, Record: rec}); err != nil {
			return err
		}
	}

	log.Info("completed dataset", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (r *Runner) executeCombination(ctx context.Context, ds Dataset, idx int, comb Combination, cache *stepCache) (Record, error) {
	rec := Record{Dataset: ds.Name, Index: idx, Combination: comb}
	input := ds.Data
	for i, step := range r.Definition.Steps {
		key := prefixKey(r.Definition, comb, i)
		co, ok := cache.get(key)
		if !ok {
			co = r.executeStep(ctx, ds, step, input, comb)
			if co.err != nil && (errors.Cause(co.err) == context.Canceled || errors.Cause(co.err) == context.DeadlineExceeded) {
				return rec, co.err
			}
			cache.add(key, co)
		}
		if co.err != nil {
			return rec, co.err
		}
		rec.Steps = append(rec.Steps, co.record)
		input = co.output
	}
	return rec, nil
}

func (r *Runner) executeStep(ctx context.Context, ds Dataset, step Step, input interface{}, comb Combination) cachedOutput {
	params := comb.Subset(step.Parameters)
	start := time.Now()
	out, err := step.Run(ctx, input, params)
	elapsed := time.Since(start)
	if err != nil {
		return cachedOutput{err: errors.Wrapf(err, "step %s failed on %s with %s", step.Name, ds.Name, params.Key())}
	}

	sr := StepRecord{Step: step.Name, Elapsed: elapsed}
	if step.Evaluate != nil {
		metrics, err := step.Evaluate(ds.Data, out)
		if err != nil {
			return cachedOutput{err: errors.Wrapf(err, "evaluation of step %s failed on %s with %s", step.Name, ds.Name, params.Key())}
		}
		sr.Metrics = make(map[string]float64, len(metrics))
		for k, v := range metrics {
			// Undefined metrics are left out rather than recorded as NaN.
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sr.Metrics[k] = v
		}
	}
	return cachedOutput{output: out, record: sr}
}

func send(ctx context.Context, c chan<- Result, r Result) error {
	select {
	case c <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the pipeline and collects the records. If the run stops early the records
// completed so far are returned along with the error.
func (r *Runner) Run(ctx context.Context, datasets []Dataset) (*Results, error) {
	return r.Collect(ctx, datasets, nil)
}

// Collect is like Run, but additionally calls progress with every record as it completes.
func (r *Runner) Collect(ctx context.Context, datasets []Dataset, progress func(Record)) (*Results, error) {
	c := make(chan Result)
	go r.Execute(ctx, datasets, c)

	results := &Results{
		RunID:      r.ID,
		Steps:      r.Definition.StepNames(),
		Parameters: r.Definition.Parameters(),
	}
	var err error
	for result := range c {
		switch result.Type {
		case Evaluation:
			results.Records = append(results.Records, result.Record)
			if progress != nil {
				progress(result.Record)
			}
		case Error:
			err = result.Error
		}
	}

	names := make([]string, len(datasets))
	for i, ds := range datasets {
		names[i] = ds.Name
	}
	results.sort(names)
	return results, err
}
