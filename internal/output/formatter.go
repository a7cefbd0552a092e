package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"sort"
	"strings"
	"time"

	"github.com/naivic/envelope/http"
	"github.com/naivic/envelope/internal/history"
	"github.com/naivic/envelope/internal/monitor"
)

// Formatter renders requests and responses as human-readable text
type Formatter struct {
	Verbose bool
	Debug   bool
	NoColor bool
	Colors  *ColorScheme
}

// NewFormatter creates a new formatter with the given options
func NewFormatter(verbose, debug, noColor bool) *Formatter {
	colors := DefaultColorScheme()
	if noColor {
		colors = NoColorScheme()
	}
	return &Formatter{
		Verbose: verbose,
		Debug:   debug,
		NoColor: noColor,
		Colors:  colors,
	}
}

// FormatRequest formats an outgoing query for display
func (f *Formatter) FormatRequest(req RequestData) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("▶ REQUEST: %s %s\n",
		f.Colors.Method.Sprint(req.Method), f.Colors.URL.Sprint(req.URL)))

	if len(req.Headers) > 0 {
		buf.WriteString("  Headers:\n")
		for _, h := range req.Headers {
			buf.WriteString("    " + f.header(h) + "\n")
		}
	}

	if req.Body != "" {
		buf.WriteString("  Body: ")
		buf.WriteString(formatJSONString(req.Body))
		buf.WriteString("\n")
	}

	return buf.String()
}

// FormatResponse formats a response for display
func (f *Formatter) FormatResponse(resp *http.Response) string {
	var buf strings.Builder

	code := resp.StatusCode()
	status := "no response"
	if code > 0 {
		status = strings.TrimSpace(fmt.Sprintf("%d %s", code, nethttp.StatusText(code)))
	}
	buf.WriteString(fmt.Sprintf("◀ RESPONSE: %s (%dms)\n",
		f.Colors.Status(code).Sprint(status), resp.TotalTime().Milliseconds()))

	if !resp.OK() {
		buf.WriteString(fmt.Sprintf("  %s %s\n", ErrorIcon(f.NoColor),
			f.Colors.Error.Sprint(strings.ReplaceAll(resp.Err, "\n", "\n    "))))
	}

	if f.Verbose {
		buf.WriteString("  Timing:\n")
		for _, t := range []struct {
			label string
			key   string
		}{
			{"DNS Lookup:      ", http.InfoNameLookupTime},
			{"TCP Connection:  ", http.InfoConnectTime},
			{"TLS Handshake:   ", http.InfoAppConnectTime},
			{"First Byte:      ", http.InfoStartTransferTime},
			{"Redirects:       ", http.InfoRedirectTime},
			{"Total:           ", http.InfoTotalTime},
		} {
			buf.WriteString(fmt.Sprintf("    %s%dms\n", t.label, resp.Info.Duration(t.key).Milliseconds()))
		}

		if len(resp.Headers) > 0 {
			buf.WriteString("  Headers:\n")
			for _, h := range resp.Headers {
				if h == "" {
					continue
				}
				buf.WriteString("    " + f.header(h) + "\n")
			}
		}
	}

	if resp.Body != "" {
		buf.WriteString("  Body:\n")
		if resp.Data != nil {
			b, err := resp.JSON()
			if err == nil {
				buf.WriteString(indent(string(b), "  "))
			} else {
				buf.WriteString(indent(resp.Body, "  "))
			}
		} else {
			buf.WriteString(indent(formatJSONString(resp.Body), "  "))
		}
		buf.WriteString("\n")
	}

	if f.Debug {
		buf.WriteString(f.Colors.Section.Sprint("  Options:") + "\n")
		buf.WriteString(formatMap(resp.Opts))
		buf.WriteString(f.Colors.Section.Sprint("  Info:") + "\n")
		buf.WriteString(formatMap(resp.Info))
		if resp.Log != "" {
			buf.WriteString(f.Colors.Section.Sprint("  Log:") + "\n")
			buf.WriteString(indent(strings.TrimRight(resp.Log, "\n"), "    "))
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// FormatSummary formats a monitor summary
func (f *Formatter) FormatSummary(s monitor.Summary) string {
	var buf strings.Builder

	icon := SuccessIcon(f.NoColor)
	if s.Errors > 0 || s.Non2xx > 0 {
		icon = WarningIcon(f.NoColor)
	}

	buf.WriteString(fmt.Sprintf("%s %d probes, %d errors, %d non-2xx\n", icon, s.Count, s.Errors, s.Non2xx))
	buf.WriteString(fmt.Sprintf("  min %s  mean %s  max %s\n", round(s.Min), round(s.Mean), round(s.Max)))
	buf.WriteString(fmt.Sprintf("  p50 %s  p90 %s  p99 %s\n", round(s.P50), round(s.P90), round(s.P99)))
	return buf.String()
}

// FormatProbes formats history entries, one per line
func (f *Formatter) FormatProbes(probes []history.Probe) string {
	if len(probes) == 0 {
		return "no probes recorded\n"
	}

	var buf strings.Builder
	for _, p := range probes {
		line := fmt.Sprintf("%s  %-6s %s  %s  %s",
			p.CreatedAt.Local().Format(time.RFC3339),
			p.Method,
			f.Colors.Status(p.HTTPCode).Sprintf("%3d", p.HTTPCode),
			round(time.Duration(p.TotalTime*float64(time.Second))),
			p.URL)
		if p.Err != "" {
			line += "  " + f.Colors.Error.Sprint(firstLine(p.Err))
		}
		buf.WriteString(line + "\n")
	}
	return buf.String()
}

func (f *Formatter) header(line string) string {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return line
	}
	return f.Colors.HeaderKey.Sprint(name) + ":" + value
}

// formatJSONString attempts to pretty-print a JSON string
func formatJSONString(s string) string {
	var prettyJSON bytes.Buffer
	err := json.Indent(&prettyJSON, []byte(s), "", "  ")
	if err != nil {
		return s
	}
	return prettyJSON.String()
}

func formatMap[M ~map[string]any](m M) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	for _, k := range keys {
		buf.WriteString(fmt.Sprintf("    %s: %v\n", k, m[k]))
	}
	return buf.String()
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func round(d time.Duration) time.Duration {
	return d.Round(10 * time.Microsecond)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
