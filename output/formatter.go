// Package output provides different formats of output for benchmark results.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yiluheihei/pipeComp/pipeline"
)

// TableFormatter is used to output a results table in various formats.
type TableFormatter func(t pipeline.Table) (string, error)

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// CsvTableFormatter outputs a table in CSV format. There is a column for the dataset, one for
// every parameter and one for every metric. Missing values are written as NA.
func CsvTableFormatter(t pipeline.Table) (string, error) {
	b := bytes.NewBufferString("")
	w := csv.NewWriter(b)
	h := []string{"dataset"}
	h = append(h, t.Parameters...)
	h = append(h, t.Metrics...)
	if err := w.Write(h); err != nil {
		return "", err
	}
	for _, row := range t.Rows {
		record := make([]string, 0, len(h))
		record = append(record, row.Dataset)
		for _, p := range t.Parameters {
			record = append(record, row.Combination[p])
		}
		for _, m := range t.Metrics {
			record = append(record, formatValue(row.Value(m)))
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}

type jsonRow struct {
	Dataset     string                 `json:"dataset,omitempty"`
	Combination map[string]string      `json:"combination"`
	Values      map[string]interface{} `json:"values"`
}

// JsonTableFormatter outputs a table in a JSON format. Missing values are null.
func JsonTableFormatter(t pipeline.Table) (string, error) {
	rows := make([]jsonRow, len(t.Rows))
	for i, row := range t.Rows {
		vals := make(map[string]interface{}, len(t.Metrics))
		for _, m := range t.Metrics {
			v := row.Value(m)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				vals[m] = nil
				continue
			}
			vals[m] = v
		}
		rows[i] = jsonRow{Dataset: row.Dataset, Combination: row.Combination, Values: vals}
	}
	v, err := json.MarshalIndent(map[string]interface{}{
		"name": t.Name,
		"rows": rows,
	}, "", "    ")
	if err != nil {
		return "", err
	}
	return string(v), nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// TextTableFormatter renders a table for a terminal. Only the given metrics are shown, or all of
// them if none are given.
func TextTableFormatter(metrics ...string) TableFormatter {
	return func(t pipeline.Table) (string, error) {
		shown := metrics
		if len(shown) == 0 {
			shown = t.Metrics
		}
		header := []string{"dataset"}
		header = append(header, t.Parameters...)
		header = append(header, shown...)

		cells := [][]string{header}
		for _, row := range t.Rows {
			line := []string{row.Dataset}
			for _, p := range t.Parameters {
				line = append(line, row.Combination[p])
			}
			for _, m := range shown {
				line = append(line, formatValue(row.Value(m)))
			}
			cells = append(cells, line)
		}

		widths := make([]int, len(header))
		for _, line := range cells {
			for j, c := range line {
				if w := lipgloss.Width(c); w > widths[j] {
					widths[j] = w
				}
			}
		}

		var b strings.Builder
		for i, line := range cells {
			rendered := make([]string, len(line))
			for j, c := range line {
				style := cellStyle
				if i == 0 {
					style = headerStyle
				}
				// Width includes the padding.
				rendered[j] = style.Width(widths[j] + 2).Render(c)
			}
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
			b.WriteString("\n")
		}
		return b.String(), nil
	}
}

// TableFormat associates a formatter with the file extension of its output.
type TableFormat struct {
	Extension string
	Formatter TableFormatter
}

var (
	// CsvFormat writes tables as CSV files.
	CsvFormat = TableFormat{Extension: ".csv", Formatter: CsvTableFormatter}
	// JsonFormat writes tables as JSON files.
	JsonFormat = TableFormat{Extension: ".json", Formatter: JsonTableFormatter}
)
