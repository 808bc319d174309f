package output

import (
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"github.com/yiluheihei/pipeComp/eval"
	"github.com/yiluheihei/pipeComp/pipeline"
)

// Format is an image format plots can be rendered in.
type Format string

// Supported plot formats.
const (
	PNG Format = "png"
	SVG Format = "svg"
)

// FormatFromPath infers the plot format from a file extension, defaulting to PNG.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return SVG
	}
	return PNG
}

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

// seriesName names a row after its dataset and the values of the parameters that vary.
func seriesName(row pipeline.Row, params []string) string {
	label := row.Combination.Label(params)
	if len(label) == 0 {
		label = "all"
	}
	if len(row.Dataset) > 0 {
		return row.Dataset + ": " + label
	}
	return label
}

// varying returns the parameters that take more than one value in the table.
func varying(t pipeline.Table) []string {
	var v []string
	for _, p := range t.Parameters {
		seen := make(map[string]bool)
		for _, row := range t.Rows {
			seen[row.Combination[p]] = true
		}
		if len(seen) > 1 {
			v = append(v, p)
		}
	}
	return v
}

// PlotFDRTPR plots, for every row of a differential expression table, the true positive rate
// against the observed false discovery rate at each of the thresholds. Points left of the
// threshold they were called at indicate the FDR is controlled. Rows lacking the metrics are
// skipped.
func PlotFDRTPR(t pipeline.Table, thresholds []float64, w io.Writer, f Format) error {
	if len(thresholds) == 0 {
		return errors.New("no thresholds to plot")
	}
	params := varying(t)

	maxFDR := 0.0
	for _, th := range thresholds {
		maxFDR = math.Max(maxFDR, th)
	}

	var series []chart.Series
	for i, row := range t.Rows {
		var xs, ys []float64
		for _, th := range thresholds {
			x, y := row.Value(eval.AtThreshold(eval.FDR.Name(), th)), row.Value(eval.AtThreshold(eval.TPR.Name(), th))
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			xs = append(xs, x)
			ys = append(ys, y)
			maxFDR = math.Max(maxFDR, x)
		}
		if len(xs) == 0 {
			continue
		}
		c := chart.GetDefaultColor(i)
		series = append(series, chart.ContinuousSeries{
			Name:    seriesName(row, params),
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: c,
				StrokeWidth: 2,
				DotColor:    c,
				DotWidth:    4,
			},
		})
	}
	if len(series) == 0 {
		return errors.Errorf("table %s has no FDR and TPR values to plot", t.Name)
	}

	ticks := []chart.Tick{{Value: 0, Label: "0"}}
	for _, th := range thresholds {
		ticks = append(ticks, chart.Tick{Value: th, Label: strconv.FormatFloat(th, 'g', -1, 64)})
	}

	graph := chart.Chart{
		Title:  "TPR vs observed FDR",
		Width:  900,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "FDR",
			Range: &chart.ContinuousRange{Min: 0, Max: maxFDR * 1.05},
			Ticks: ticks,
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.ColorFromHex("cccccc"),
				StrokeWidth: 1,
			},
		},
		YAxis: chart.YAxis{
			Name:  "TPR",
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}
	return errors.Wrap(graph.Render(f.provider(), w), "could not render plot")
}

// PlotBars draws a bar per combination of the sum of the given metrics, averaged over datasets.
// It is used to plot the time spent in each pipeline, with the step names as metrics.
func PlotBars(t pipeline.Table, metrics []string, title string, w io.Writer, f Format) error {
	summary, err := t.Summarise(pipeline.Mean)
	if err != nil {
		return err
	}
	params := varying(t)

	var bars []chart.Value
	maxValue := 0.0
	for _, row := range summary.Rows {
		total := 0.0
		for _, m := range metrics {
			if v := row.Value(m); !math.IsNaN(v) {
				total += v
			}
		}
		maxValue = math.Max(maxValue, total)
		bars = append(bars, chart.Value{Label: seriesName(row, params), Value: total})
	}
	if len(bars) == 0 || maxValue <= 0 {
		return errors.Errorf("table %s has no values to plot", t.Name)
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      120*len(bars) + 100,
		Height:     500,
		BarWidth:   80,
		BarSpacing: 40,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Bottom: 40},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1},
		},
		Bars: bars,
	}
	return errors.Wrap(graph.Render(f.provider(), w), "could not render plot")
}

// PlotElapsed draws the mean time, in seconds, each combination spent across all steps.
func PlotElapsed(t pipeline.Table, w io.Writer, f Format) error {
	return PlotBars(t, t.Metrics, "Elapsed time (s)", w, f)
}
