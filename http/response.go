package http

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/naivic/envelope/pkg/jsonpath"
)

// Info holds transfer metadata reported by a Transport: status code,
// effective URL, sizes and cumulative timings in seconds.
type Info map[string]any

// Well-known Info keys.
const (
	InfoURL               = "url"
	InfoContentType       = "content_type"
	InfoHTTPCode          = "http_code"
	InfoHeaderSize        = "header_size"
	InfoRequestSize       = "request_size"
	InfoRedirectCount     = "redirect_count"
	InfoRedirectURL       = "redirect_url"
	InfoTotalTime         = "total_time"
	InfoNameLookupTime    = "namelookup_time"
	InfoConnectTime       = "connect_time"
	InfoAppConnectTime    = "appconnect_time"
	InfoPretransferTime   = "pretransfer_time"
	InfoStartTransferTime = "starttransfer_time"
	InfoRedirectTime      = "redirect_time"
	InfoSizeDownload      = "size_download"
	InfoSizeUpload        = "size_upload"
	InfoPrimaryIP         = "primary_ip"
	InfoPrimaryPort       = "primary_port"
	InfoLocalIP           = "local_ip"
	InfoLocalPort         = "local_port"
	InfoHTTPVersion       = "http_version"
	InfoScheme            = "scheme"
	InfoEffectiveMethod   = "effective_method"
	InfoSSLVerifyResult   = "ssl_verify_result"
)

// String returns a string entry, or "" when absent.
func (i Info) String(key string) string {
	s, _ := i[key].(string)
	return s
}

// Int returns an integer entry, or 0 when absent.
func (i Info) Int(key string) int {
	switch v := i[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Seconds returns a timing entry as a float number of seconds.
func (i Info) Seconds(key string) float64 {
	switch v := i[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Duration returns a timing entry as a time.Duration.
func (i Info) Duration(key string) time.Duration {
	return time.Duration(math.Round(i.Seconds(key) * float64(time.Second)))
}

// Response is the outcome of one Query. It is built once and not modified
// afterwards.
type Response struct {
	// Body is the response payload with every header block stripped.
	Body string

	// Data is the decoded body when the response is JSON, nil otherwise.
	Data any

	// Headers lists the received header lines in order, trimmed. Status
	// lines and the empty lines closing each block are included, for every
	// redirect hop.
	Headers []string

	// Err is the transport error, empty on success. A JSON decode failure
	// is appended as an extra line.
	Err string

	// Opts are the effective transfer options keyed by mnemonic.
	Opts map[string]any

	// Info is the transfer metadata.
	Info Info

	// Log is the verbose transfer trace.
	Log string
}

// OK reports whether the transfer completed without any error.
func (r *Response) OK() bool {
	return r.Err == ""
}

// StatusCode returns the HTTP status of the last response, 0 if none.
func (r *Response) StatusCode() int {
	return r.Info.Int(InfoHTTPCode)
}

// ContentType returns the content type of the last response.
func (r *Response) ContentType() string {
	return r.Info.String(InfoContentType)
}

// TotalTime returns the duration of the whole transfer.
func (r *Response) TotalTime() time.Duration {
	return r.Info.Duration(InfoTotalTime)
}

// IsSuccess returns true if the status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	code := r.StatusCode()
	return code >= 200 && code < 300
}

// IsRedirect returns true if the status code is in the 3xx range
func (r *Response) IsRedirect() bool {
	code := r.StatusCode()
	return code >= 300 && code < 400
}

// Header returns the value of the named header in the last header block,
// or "" when it was not received. Names compare case-insensitively.
func (r *Response) Header(name string) string {
	prefix := strings.ToLower(name) + ":"
	value := ""
	for _, line := range r.Headers {
		if strings.HasPrefix(line, "HTTP/") {
			value = ""
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			value = strings.TrimSpace(line[len(prefix):])
		}
	}
	return value
}

// Extract looks up a JSONPath-like expression ("$.docs[0].title" or
// "docs.0.title") in the body.
func (r *Response) Extract(path string) (string, error) {
	return jsonpath.Extract(r.Body, path)
}

// JSON re-encodes Data with indentation; it returns nil when there is no
// decoded data.
func (r *Response) JSON() ([]byte, error) {
	if r.Data == nil {
		return nil, nil
	}
	return json.MarshalIndent(r.Data, "", "  ")
}
