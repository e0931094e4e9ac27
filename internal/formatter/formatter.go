// package formatter renders tabular data to a writer in the configured table format
//
// Bordered formats (grid, rounded, simple, plain, github, markdown) are drawn with lipgloss tables;
// csv, tsv and json are machine-readable.
package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/synchronic/internal/shared"
)

// Supported table formats
const (
	FormatGrid     = "grid"
	FormatRounded  = "rounded"
	FormatSimple   = "simple"
	FormatPlain    = "plain"
	FormatGithub   = "github"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatTSV      = "tsv"
	FormatJSON     = "json"
)

// DefaultFormat is used when no format is configured.
const DefaultFormat = FormatSimple

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Table is a header row plus string cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates an empty table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, Rows: [][]string{}}
}

// Append adds a row, converting each value with fmt.Sprint.
func (t *Table) Append(values ...any) {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprint(v)
	}
	t.Rows = append(t.Rows, row)
}

// Formats lists every supported format name.
func Formats() []string {
	return []string{
		FormatGrid, FormatRounded, FormatSimple, FormatPlain, FormatGithub,
		FormatMarkdown, FormatCSV, FormatTSV, FormatJSON,
	}
}

// ValidFormat reports whether format names a supported table format (case-insensitive).
func ValidFormat(format string) bool {
	return slices.Contains(Formats(), normalize(format))
}

func normalize(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return DefaultFormat
	}
	return f
}

// Render writes t to w in the named format.
func Render(w io.Writer, format string, t *Table) error {
	switch f := normalize(format); f {
	case FormatCSV:
		return writeDelimited(w, t, ',')
	case FormatTSV:
		return writeDelimited(w, t, '\t')
	case FormatJSON:
		return writeJSON(w, t)
	case FormatGrid, FormatRounded, FormatSimple, FormatPlain, FormatGithub, FormatMarkdown:
		_, err := fmt.Fprintln(w, styled(f, t).String())
		return err
	default:
		return fmt.Errorf("%w: %q (expected one of %s)", shared.ErrUnsupportedFormat, format, strings.Join(Formats(), ", "))
	}
}

func styled(format string, t *Table) *table.Table {
	tbl := table.New().
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })

	switch format {
	case FormatGrid:
		tbl.Border(lipgloss.NormalBorder()).BorderRow(true)
	case FormatRounded:
		tbl.Border(lipgloss.RoundedBorder())
	case FormatSimple:
		tbl.Border(lipgloss.NormalBorder()).
			BorderTop(false).BorderBottom(false).
			BorderLeft(false).BorderRight(false).
			BorderColumn(false)
	case FormatPlain:
		tbl.Border(lipgloss.HiddenBorder()).BorderHeader(false)
	case FormatGithub, FormatMarkdown:
		tbl.Border(lipgloss.MarkdownBorder()).BorderTop(false).BorderBottom(false)
	}
	return tbl
}

func writeDelimited(w io.Writer, t *Table, comma rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = comma

	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// writeJSON writes one object per row keyed by header.
func writeJSON(w io.Writer, t *Table) error {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				record[h] = row[i]
			} else {
				record[h] = ""
			}
		}
		records = append(records, record)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
