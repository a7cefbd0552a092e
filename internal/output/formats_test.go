package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/naivic/envelope/internal/history"
	"github.com/naivic/envelope/internal/monitor"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"junit", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestGetFormatter(t *testing.T) {
	assert.IsType(t, &Formatter{}, GetFormatter(FormatText, false, false, true))
	assert.IsType(t, &JSONFormatter{}, GetFormatter(FormatJSON, false, false, true))
	assert.IsType(t, &YAMLFormatter{}, GetFormatter(FormatYAML, false, false, true))
}

func TestJSONFormatter_FormatResponse(t *testing.T) {
	f := &JSONFormatter{}

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.FormatResponse(sampleResponse())), &data))

	assert.Equal(t, 200.0, data["http_code"])
	assert.Equal(t, "https://api.test/objects/7", data["url"])
	assert.Equal(t, 0.123, data["total_time"])
	assert.Equal(t, map[string]any{"id": "7", "name": "The Cat"}, data["body"])
	assert.NotContains(t, data, "headers")
	assert.NotContains(t, data, "opts")
	assert.NotContains(t, data, "error")
}

func TestJSONFormatter_FormatResponseDebug(t *testing.T) {
	f := &JSONFormatter{Debug: true, Pretty: true}

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.FormatResponse(sampleResponse())), &data))

	assert.Contains(t, data, "headers")
	assert.Equal(t, 3.0, data["opts"].(map[string]any)["MAXREDIRS"])
	assert.Equal(t, "application/json", data["info"].(map[string]any)["content_type"])
	assert.Contains(t, data["log"], "Connected to api.test")
}

func TestYAMLFormatter_FormatResponse(t *testing.T) {
	f := &YAMLFormatter{Verbose: true}

	var data map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(f.FormatResponse(sampleResponse())), &data))

	assert.Equal(t, 200, data["http_code"])
	assert.Equal(t, []any{"HTTP/1.1 200 OK", "Content-Type: application/json", ""}, data["headers"])
	assert.Equal(t, "The Cat", data["body"].(map[string]any)["name"])
}

func TestStructuredSummaryAndProbes(t *testing.T) {
	summary := monitor.Summary{Count: 2, Min: 1500 * time.Microsecond, P99: 2 * time.Millisecond}

	var js map[string]any
	require.NoError(t, json.Unmarshal([]byte((&JSONFormatter{}).FormatSummary(summary)), &js))
	assert.Equal(t, 2.0, js["count"])
	assert.Equal(t, 1.5, js["min_ms"])
	assert.Equal(t, 2.0, js["p99_ms"])

	var ys map[string]any
	require.NoError(t, yaml.Unmarshal([]byte((&YAMLFormatter{}).FormatSummary(summary)), &ys))
	assert.Equal(t, 1.5, ys["min_ms"])

	assert.Equal(t, "[]", (&JSONFormatter{}).FormatProbes(nil))

	var probes []history.Probe
	out := (&JSONFormatter{}).FormatProbes([]history.Probe{{ID: "x", Method: "GET", URL: "http://a.test/", HTTPCode: 200}})
	require.NoError(t, json.Unmarshal([]byte(out), &probes))
	require.Len(t, probes, 1)
	assert.Equal(t, "x", probes[0].ID)
}

func TestJSONFormatter_FormatRequest(t *testing.T) {
	out := (&JSONFormatter{}).FormatRequest(RequestData{Method: "GET", URL: "http://a.test/?q=1"})
	assert.JSONEq(t, `{"method":"GET","url":"http://a.test/?q=1"}`, out)
}
