package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pagewise/pagewise/internal/observability"
)

// Renderer handles text output, styled when writing to a terminal.
type Renderer struct {
	width   int
	styled  bool
	numbers *message.Printer

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Success lipgloss.Style

	Header    lipgloss.Style
	Cell      lipgloss.Style
	CellMuted lipgloss.Style
}

// NewRenderer creates a renderer for w. Styling is enabled when w is a
// TTY and NO_COLOR is unset, or when forceStyled is true.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, isTTY := terminalInfo(w)
	styled := forceStyled || (isTTY && os.Getenv("NO_COLOR") == "")

	r := &Renderer{
		width:   width,
		styled:  styled,
		numbers: message.NewPrinter(language.English),
	}
	plain := lipgloss.NewStyle()
	r.Summary, r.Muted, r.Data, r.Error, r.Hint, r.Success = plain, plain, plain, plain, plain, plain
	r.Header, r.Cell, r.CellMuted = plain, plain, plain

	if styled {
		r.Summary = plain.Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
		r.Muted = plain.Foreground(lipgloss.Color("#737aa2"))
		r.Data = plain.Foreground(lipgloss.Color("#c0caf5"))
		r.Error = plain.Foreground(lipgloss.Color("#f7768e")).Bold(true)
		r.Hint = plain.Foreground(lipgloss.Color("#737aa2")).Italic(true)
		r.Success = plain.Foreground(lipgloss.Color("#9ece6a"))
		r.Header = plain.Foreground(lipgloss.Color("#c0caf5")).Bold(true)
		r.Cell = plain.Foreground(lipgloss.Color("#c0caf5"))
		r.CellMuted = plain.Foreground(lipgloss.Color("#737aa2"))
	}
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 100
	f, ok := w.(*os.File)
	if !ok {
		return width, false
	}
	if !term.IsTerminal(f.Fd()) {
		return width, false
	}
	if tw, _, err := term.GetSize(f.Fd()); err == nil && tw >= 40 {
		width = tw
	}
	return width, true
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		if resp.Status != "" {
			b.WriteString(" ")
			b.WriteString(r.renderStatus(resp.Status, resp.Problem))
		}
		b.WriteString("\n")
	} else if resp.Status != "" {
		b.WriteString(r.renderStatus(resp.Status, resp.Problem))
		b.WriteString("\n")
	}

	if resp.Data != nil {
		data, err := NormalizeData(resp.Data)
		if err != nil {
			return err
		}
		r.renderData(&b, data)
	}

	if stats, ok := resp.Meta["stats"].(observability.SessionMetrics); ok {
		if parts := stats.FormatParts(); len(parts) > 0 {
			b.WriteString(r.Muted.Render("Stats: " + strings.Join(parts, " | ")))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderStatus(status, problem string) string {
	label := "[" + status + "]"
	if problem != "" {
		return r.Error.Render(label + " " + problem)
	}
	if strings.HasPrefix(status, "loading") || status == "refreshing" {
		return r.Muted.Render(label)
	}
	return r.Success.Render(label)
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")
	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		if maps := toMapSlice(d); maps != nil {
			r.renderTable(b, maps)
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + r.formatCell(item)))
			b.WriteString("\n")
		}

	case map[string]any:
		r.renderObject(b, d)

	default:
		b.WriteString(r.Data.Render(r.formatCell(d)))
		b.WriteString("\n")
	}
}

func toMapSlice(slice []any) []map[string]any {
	result := make([]map[string]any, 0, len(slice))
	for _, item := range slice {
		m, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		result = append(result, m)
	}
	return result
}

// Column priority for table rendering (lower = higher priority)
var columnPriority = map[string]int{
	"name":        1,
	"watchers":    2,
	"private":     3,
	"description": 4,
	"key":         1,
	"value":       2,
	"source":      3,
	"html_url":    8,
	"node_id":     9,
}

var mutedColumns = map[string]bool{
	"node_id": true,
	"source":  true,
}

type column struct {
	key      string
	header   string
	priority int
	muted    bool
	width    int
}

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	columns := r.selectColumns(detectColumns(data[0]), data)
	if len(columns) == 0 {
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			if col < len(columns) && columns[col].muted {
				return r.CellMuted
			}
			return r.Cell
		})

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = col.header
	}
	t.Headers(headers...)

	for _, item := range data {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = r.formatCell(item[col.key])
		}
		t.Row(row...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

func detectColumns(first map[string]any) []column {
	var cols []column
	for key, val := range first {
		switch val.(type) {
		case map[string]any, []any:
			continue
		}
		priority := columnPriority[key]
		if priority == 0 {
			priority = 50
		}
		cols = append(cols, column{
			key:      key,
			header:   formatHeader(key),
			priority: priority,
			muted:    mutedColumns[key],
		})
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].priority != cols[j].priority {
			return cols[i].priority < cols[j].priority
		}
		return cols[i].key < cols[j].key
	})
	return cols
}

// selectColumns drops the lowest-priority columns until the table fits
// the terminal width.
func (r *Renderer) selectColumns(cols []column, data []map[string]any) []column {
	for i := range cols {
		cols[i].width = lipgloss.Width(cols[i].header)
		for _, row := range data {
			if w := lipgloss.Width(r.formatCell(row[cols[i].key])); w > cols[i].width {
				cols[i].width = w
			}
		}
		cols[i].width = min(cols[i].width, 40)
	}

	const padding = 2
	selected := cols
	for len(selected) > 1 {
		total := 0
		for _, col := range selected {
			total += col.width + padding
		}
		if total <= r.width {
			break
		}
		selected = selected[:len(selected)-1]
	}
	return selected
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}

	maxLen := 0
	for _, k := range keys {
		maxLen = max(maxLen, len(formatHeader(k)))
	}
	for _, k := range keys {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(k)))
		b.WriteString(label + r.Data.Render(r.formatCell(data[k])) + "\n")
	}
}

func formatHeader(key string) string {
	key = strings.TrimSuffix(key, "_url")
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		switch w {
		case "id", "html", "url":
			words[i] = strings.ToUpper(w)
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (r *Renderer) formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len([]rune(v)) > 40 {
			return string([]rune(v)[:37]) + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return r.numbers.Sprintf("%d", int64(v))
		}
		return r.numbers.Sprintf("%.2f", v)
	case int:
		return r.numbers.Sprintf("%d", v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = r.formatCell(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
