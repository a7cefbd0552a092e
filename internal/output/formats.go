package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/naivic/envelope/http"
	"github.com/naivic/envelope/internal/history"
	"github.com/naivic/envelope/internal/monitor"
)

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (use text, json or yaml)", s)
	}
}

// FormatProvider is an interface for different output formatters
type FormatProvider interface {
	FormatRequest(req RequestData) string
	FormatResponse(resp *http.Response) string
	FormatSummary(s monitor.Summary) string
	FormatProbes(probes []history.Probe) string
}

// RequestData describes an outgoing query for display.
type RequestData struct {
	Method  string   `json:"method" yaml:"method"`
	URL     string   `json:"url" yaml:"url"`
	Headers []string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string   `json:"body,omitempty" yaml:"body,omitempty"`
}

// ResponseData is the structured form of a Response.
type ResponseData struct {
	StatusCode  int            `json:"http_code" yaml:"http_code"`
	URL         string         `json:"url" yaml:"url"`
	ContentType string         `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	TotalTime   float64        `json:"total_time" yaml:"total_time"`
	Headers     []string       `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        any            `json:"body,omitempty" yaml:"body,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Opts        map[string]any `json:"opts,omitempty" yaml:"opts,omitempty"`
	Info        http.Info      `json:"info,omitempty" yaml:"info,omitempty"`
	Log         string         `json:"log,omitempty" yaml:"log,omitempty"`
}

// SummaryData is the structured form of a monitor summary, in milliseconds.
type SummaryData struct {
	Count  int     `json:"count" yaml:"count"`
	Errors int     `json:"errors" yaml:"errors"`
	Non2xx int     `json:"non_2xx" yaml:"non_2xx"`
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

func newResponseData(resp *http.Response, verbose, debug bool) ResponseData {
	data := ResponseData{
		StatusCode:  resp.StatusCode(),
		URL:         resp.Info.String(http.InfoURL),
		ContentType: resp.ContentType(),
		TotalTime:   resp.Info.Seconds(http.InfoTotalTime),
		Error:       resp.Err,
	}

	switch {
	case resp.Data != nil:
		data.Body = resp.Data
	case resp.Body != "":
		data.Body = resp.Body
	}

	if verbose || debug {
		data.Headers = resp.Headers
	}
	if debug {
		data.Opts = resp.Opts
		data.Info = resp.Info
		data.Log = resp.Log
	}
	return data
}

func newSummaryData(s monitor.Summary) SummaryData {
	return SummaryData{
		Count:  s.Count,
		Errors: s.Errors,
		Non2xx: s.Non2xx,
		MinMs:  ms(s.Min.Seconds()),
		MaxMs:  ms(s.Max.Seconds()),
		MeanMs: ms(s.Mean.Seconds()),
		P50Ms:  ms(s.P50.Seconds()),
		P90Ms:  ms(s.P90.Seconds()),
		P99Ms:  ms(s.P99.Seconds()),
	}
}

// ms converts seconds to milliseconds rounded to microsecond precision.
func ms(seconds float64) float64 {
	return float64(int64(seconds*1e6+0.5)) / 1e3
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Verbose bool
	Debug   bool
	Pretty  bool
}

func (f *JSONFormatter) marshal(v any) string {
	var output []byte
	var err error
	if f.Pretty {
		output, err = json.MarshalIndent(v, "", "  ")
	} else {
		output, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Sprintf(`{"error":"Failed to marshal output: %s"}`, err)
	}
	return string(output)
}

// FormatRequest formats a request as JSON
func (f *JSONFormatter) FormatRequest(req RequestData) string {
	return f.marshal(req)
}

// FormatResponse formats a response as JSON
func (f *JSONFormatter) FormatResponse(resp *http.Response) string {
	return f.marshal(newResponseData(resp, f.Verbose, f.Debug))
}

// FormatSummary formats a monitor summary as JSON
func (f *JSONFormatter) FormatSummary(s monitor.Summary) string {
	return f.marshal(newSummaryData(s))
}

// FormatProbes formats history entries as JSON
func (f *JSONFormatter) FormatProbes(probes []history.Probe) string {
	if probes == nil {
		probes = []history.Probe{}
	}
	return f.marshal(probes)
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	Verbose bool
	Debug   bool
}

func (f *YAMLFormatter) marshal(v any) string {
	output, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: Failed to marshal output: %s", err)
	}
	return string(output)
}

// FormatRequest formats a request as YAML
func (f *YAMLFormatter) FormatRequest(req RequestData) string {
	return f.marshal(req)
}

// FormatResponse formats a response as YAML
func (f *YAMLFormatter) FormatResponse(resp *http.Response) string {
	return f.marshal(newResponseData(resp, f.Verbose, f.Debug))
}

// FormatSummary formats a monitor summary as YAML
func (f *YAMLFormatter) FormatSummary(s monitor.Summary) string {
	return f.marshal(newSummaryData(s))
}

// FormatProbes formats history entries as YAML
func (f *YAMLFormatter) FormatProbes(probes []history.Probe) string {
	if probes == nil {
		probes = []history.Probe{}
	}
	return f.marshal(probes)
}

// GetFormatter returns the appropriate formatter for the given format
func GetFormatter(format OutputFormat, verbose, debug, noColor bool) FormatProvider {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Verbose: verbose, Debug: debug, Pretty: true}
	case FormatYAML:
		return &YAMLFormatter{Verbose: verbose, Debug: debug}
	default:
		return NewFormatter(verbose, debug, noColor)
	}
}
