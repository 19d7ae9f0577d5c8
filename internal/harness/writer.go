package harness

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Writer renders measurement results.
type Writer interface {
	WriteHeader() error
	// WriteSample is called for every repetition.
	WriteSample(s Sample) error
	// WriteSummary is called once per measured benchmark.
	WriteSummary(s Summary) error
	Flush() error
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// CSVWriter writes one "benchmark,mean,median,error" record per summary.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a CSVWriter on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write([]string{"benchmark", "mean", "median", "error"})
}

func (c *CSVWriter) WriteSample(Sample) error { return nil }

func (c *CSVWriter) WriteSummary(s Summary) error {
	return c.w.Write([]string{
		s.Benchmark,
		formatFloat(s.Stats.MeanMS),
		formatFloat(s.Stats.MedianMS),
		formatFloat(s.Stats.ErrorPct),
	})
}

func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// ScaleWriter writes one "paradigm,cores,name,duration" line per repetition
// and nothing per summary.
type ScaleWriter struct {
	w *csv.Writer
}

// NewScaleWriter creates a ScaleWriter on w.
func NewScaleWriter(w io.Writer) *ScaleWriter {
	return &ScaleWriter{w: csv.NewWriter(w)}
}

func (c *ScaleWriter) WriteHeader() error { return nil }

func (c *ScaleWriter) WriteSample(s Sample) error {
	return c.w.Write([]string{
		s.Paradigm,
		strconv.Itoa(s.Cores),
		s.Benchmark,
		formatFloat(float64(s.Duration.Microseconds()) / 1000),
	})
}

func (c *ScaleWriter) WriteSummary(Summary) error { return nil }

func (c *ScaleWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// ConsoleWriter collects summaries and renders them as a table on Flush.
type ConsoleWriter struct {
	out  io.Writer
	rows [][]string
}

// NewConsoleWriter creates a ConsoleWriter on w.
func NewConsoleWriter(w io.Writer) *ConsoleWriter {
	return &ConsoleWriter{out: w}
}

func (c *ConsoleWriter) WriteHeader() error { return nil }

func (c *ConsoleWriter) WriteSample(Sample) error { return nil }

func (c *ConsoleWriter) WriteSummary(s Summary) error {
	c.rows = append(c.rows, []string{
		s.Benchmark,
		s.Paradigm,
		strconv.Itoa(s.Cores),
		strconv.FormatInt(s.Stats.Count, 10),
		formatFloat(s.Stats.MeanMS) + " ms",
		formatFloat(s.Stats.MedianMS) + " ms",
		"+/- " + formatFloat(s.Stats.ErrorPct) + " %",
		formatFloat(s.Stats.StddevMS),
	})
	return nil
}

func (c *ConsoleWriter) Flush() error {
	if len(c.rows) == 0 {
		return nil
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("benchmark", "paradigm", "cores", "reps", "mean", "median", "error", "stddev").
		Rows(c.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 2:
				return numberStyle
			default:
				return cellStyle
			}
		})
	c.rows = nil
	_, err := fmt.Fprintln(c.out, t.Render())
	return err
}

var (
	_ Writer = (*CSVWriter)(nil)
	_ Writer = (*ScaleWriter)(nil)
	_ Writer = (*ConsoleWriter)(nil)
)
