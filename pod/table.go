package pod

import (
	"fmt"
	"io"
	"strings"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// FormatFunc colors a cell value
type FormatFunc func(value string) string

// ColumnSpec defines a column's properties
type ColumnSpec struct {
	Header     string
	BlankValue string // shown for empty cells, "-" when unset
	FormatFunc FormatFunc
	MinWidth   int
}

// Table is a plain text table with ANSI-aware column widths
type Table struct {
	columns []ColumnSpec
	rows    [][]string
	widths  []int
}

func NewTable(cols ...ColumnSpec) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i := range t.columns {
		t.widths[i] = max(t.columns[i].MinWidth, len(t.columns[i].Header))
		if t.columns[i].BlankValue == "" {
			t.columns[i].BlankValue = "-"
		}
	}
	return t
}

// AddRow appends a row. Missing or empty cells get the column's blank value.
func (t *Table) AddRow(data ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(data) && data[i] != "" {
			row[i] = data[i]
		} else {
			row[i] = t.columns[i].BlankValue
		}
		if n := visibleLength(row[i]); n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the header, a rule and every row to w.
func (t *Table) Render(w io.Writer) error {
	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		cells[i] = pad(col.Header, t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " ")); err != nil {
		return err
	}

	for i := range cells {
		cells[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.Join(cells, " ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		for i, val := range row {
			if f := t.columns[i].FormatFunc; f != nil && val != t.columns[i].BlankValue {
				val = f(val)
			}
			cells[i] = pad(val, t.widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " ")); err != nil {
			return err
		}
	}
	return nil
}

// Highlight is a FormatFunc in the same colors the hex dump uses
func Highlight(s string) string {
	return coloransi.Color(coloransi.ColorOrange, coloransi.ColorPurple, s)
}

func pad(s string, width int) string {
	if n := visibleLength(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// visibleLength counts runes outside ANSI escape sequences
func visibleLength(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			n++
		}
	}
	return n
}
