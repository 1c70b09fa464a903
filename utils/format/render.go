package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Options controls rendering
type Options struct {
	Color   bool // apply lipgloss colors and bold headers
	MaxRows int  // rows or items shown, 0 for all
	Links   bool // list Qiita study links below the data
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Summary describes the size of the output, e.g. "12 rows, 4 columns"
func (o Output) Summary() string {
	switch o.Shape {
	case Table:
		return fmt.Sprintf("%d rows, %d columns", len(o.Rows), len(o.Headers))
	case List:
		return fmt.Sprintf("%d items", len(o.Items))
	case Scalar:
		return "1 item"
	default:
		return "no output"
	}
}

// Render writes out to w
func Render(w io.Writer, out Output, opts Options) error {
	var b strings.Builder

	switch out.Shape {
	case Empty:
		b.WriteString("(no output)\n")
	case Scalar:
		b.WriteString(out.Scalar + "\n")
	case List:
		items, more := limit(out.Items, opts.MaxRows)
		width := len(fmt.Sprint(len(items)))
		for i, item := range items {
			fmt.Fprintf(&b, "%*d. %s\n", width, i+1, item)
		}
		if more > 0 {
			b.WriteString(style(opts, dimStyle, fmt.Sprintf("... and %d more items", more)) + "\n")
		}
	case Table:
		rows, more := limitRows(out.Rows, opts.MaxRows)
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(out.Headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if opts.Color && row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		if opts.Color {
			t = t.BorderStyle(borderStyle)
		}
		b.WriteString(t.String() + "\n")
		if more > 0 {
			b.WriteString(style(opts, dimStyle, fmt.Sprintf("... and %d more rows", more)) + "\n")
		}
	}

	if out.Shape == Table || out.Shape == List {
		b.WriteString(style(opts, dimStyle, "Summary: "+out.Summary()) + "\n")
	}

	if opts.Links && len(out.StudyIDs) > 0 {
		b.WriteString("\nQiita studies found:\n")
		for _, id := range out.StudyIDs {
			fmt.Fprintf(&b, "  %s  %s\n", id, StudyLink(id))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func style(opts Options, s lipgloss.Style, text string) string {
	if !opts.Color {
		return text
	}
	return s.Render(text)
}

func limit(items []string, max int) ([]string, int) {
	if max <= 0 || len(items) <= max {
		return items, 0
	}
	return items[:max], len(items) - max
}

func limitRows(rows [][]string, max int) ([][]string, int) {
	if max <= 0 || len(rows) <= max {
		return rows, 0
	}
	return rows[:max], len(rows) - max
}
