package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is the success envelope.
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Status  string         `json:"status,omitempty"`
	Problem string         `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "text"
	}
}

// ParseFormat maps a --format value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatText, ErrUsageHint(fmt.Sprintf("unknown format %q", s), "Use text, json, or yaml")
}

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer

	// JQ filters the JSON form of every envelope. String results print
	// raw in text format.
	JQ string

	// Stream writes one document per envelope: compact JSON lines, or
	// YAML documents separated by ---.
	Stream bool

	// ForceStyled emits ANSI styling even when Writer is not a TTY.
	ForceStyled bool
}

// Writer handles all output formatting. It is safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	opts     Options
	jq       *gojq.Code
	renderer *Renderer
	docs     int
}

// New creates a new output writer. An invalid JQ expression is a usage
// error.
func New(opts Options) (*Writer, error) {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	w := &Writer{opts: opts}
	if opts.JQ != "" {
		query, err := gojq.Parse(opts.JQ)
		if err != nil {
			return nil, ErrUsageHint(fmt.Sprintf("invalid --jq expression: %v", err), "See https://jqlang.org/manual/")
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, ErrUsageHint(fmt.Sprintf("invalid --jq expression: %v", err), "See https://jqlang.org/manual/")
		}
		w.jq = code
	}
	if opts.Format == FormatText {
		w.renderer = NewRenderer(opts.Writer, opts.ForceStyled)
	}
	return w, nil
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	return w.write(&ErrorResponse{
		OK:    false,
		Error: e.Message,
		Code:  e.Code,
		Hint:  e.Hint,
	})
}

func (w *Writer) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.jq != nil {
		return w.writeJQ(v)
	}
	switch w.opts.Format {
	case FormatJSON:
		return w.writeJSON(v)
	case FormatYAML:
		return w.writeYAML(v)
	default:
		return w.writeText(v)
	}
}

func (w *Writer) writeText(v any) error {
	switch resp := v.(type) {
	case *Response:
		return w.renderer.RenderResponse(w.opts.Writer, resp)
	case *ErrorResponse:
		return w.renderer.RenderError(w.opts.Writer, resp)
	default:
		return w.writeJSON(v)
	}
}

func (w *Writer) writeJSON(v any) error {
	var (
		b   []byte
		err error
	)
	if w.opts.Stream {
		b, err = json.Marshal(v)
	} else {
		b, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.opts.Writer.Write(b)
	return err
}

func (w *Writer) writeYAML(v any) error {
	// Go through the JSON form so YAML keys match the JSON envelope.
	doc, err := NormalizeData(v)
	if err != nil {
		return err
	}
	if w.docs > 0 {
		if _, err := io.WriteString(w.opts.Writer, "---\n"); err != nil {
			return err
		}
	}
	w.docs++
	enc := yaml.NewEncoder(w.opts.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func (w *Writer) writeJQ(v any) error {
	input, err := NormalizeData(v)
	if err != nil {
		return err
	}
	iter := w.jq.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := result.(error); ok {
			if _, halt := err.(*gojq.HaltError); halt {
				return nil
			}
			return ErrUsage(fmt.Sprintf("jq: %v", err))
		}
		if s, ok := result.(string); ok && w.opts.Format == FormatText {
			if _, err := fmt.Fprintln(w.opts.Writer, s); err != nil {
				return err
			}
			continue
		}
		if w.opts.Format == FormatYAML {
			err = w.writeYAML(result)
		} else {
			err = w.writeJSON(result)
		}
		if err != nil {
			return err
		}
	}
}

// NormalizeData converts typed values to the map/slice/float64 shapes
// JSON decoding produces.
func NormalizeData(v any) (any, error) {
	switch v.(type) {
	case nil, map[string]any, []any, string, bool, float64:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithStatus records a status label and, for failures, the message.
func WithStatus(status, problem string) ResponseOption {
	return func(r *Response) {
		r.Status = status
		r.Problem = problem
	}
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
