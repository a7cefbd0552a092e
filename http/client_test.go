package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle replays canned header blocks and a body through the header
// callback, the way a real transport reports them.
type fakeHandle struct {
	blocks     [][]string
	body       string
	info       Info
	err        error
	setErr     error
	opts       Options
	performed  bool
	closed     bool
	traceLines []string
}

func (h *fakeHandle) SetOptions(opts Options) error {
	h.opts = opts.Clone()
	return h.setErr
}

func (h *fakeHandle) Perform(ctx context.Context) ([]byte, error) {
	h.performed = true
	if w, ok := h.opts[OptStderr].(interface{ Write([]byte) (int, error) }); ok {
		for _, line := range h.traceLines {
			w.Write([]byte(line + "\n"))
		}
	}
	cb, _ := h.opts[OptHeaderFunction].(HeaderFunc)
	var raw strings.Builder
	for _, block := range h.blocks {
		for _, line := range block {
			if cb != nil {
				cb(line)
			}
			raw.WriteString(line)
		}
	}
	raw.WriteString(h.body)
	return []byte(raw.String()), h.err
}

func (h *fakeHandle) Info() Info {
	return h.info
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func newFakeClient(h *fakeHandle, options ...ClientOption) *Client {
	return NewClient(append([]ClientOption{WithTransport(TransportFunc(func() (Handle, error) {
		return h, nil
	}))}, options...)...)
}

func okBlock(contentType string) []string {
	return []string{
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: " + contentType + "\r\n",
		"\r\n",
	}
}

func TestClient_Query_GetWithoutParams(t *testing.T) {
	h := &fakeHandle{blocks: [][]string{okBlock("text/plain")}, body: "hello"}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "get", "http://x/search", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://x/search", h.opts[OptURL])
	assert.Equal(t, "GET", h.opts[OptCustomRequest])
	assert.Equal(t, false, h.opts[OptPost])
	assert.NotContains(t, h.opts, OptPostFields)
	assert.NotContains(t, h.opts, OptHTTPHeader)
	assert.Equal(t, "hello", resp.Body)
	assert.Equal(t, "GET", resp.Opts["CUSTOMREQUEST"])
}

func TestClient_Query_GetWithFields(t *testing.T) {
	h := &fakeHandle{blocks: [][]string{okBlock("text/plain")}}
	client := newFakeClient(h)

	_, err := client.Query(context.Background(), "GET", "http://x/search", Fields{F("q", "Alice Wonderland")}, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://x/search?q=Alice+Wonderland", h.opts[OptURL])
	assert.NotContains(t, h.opts, OptPostFields)
}

func TestClient_Query_GetWithEmptyFields(t *testing.T) {
	h := &fakeHandle{blocks: [][]string{okBlock("text/plain")}}
	client := newFakeClient(h)

	_, err := client.Query(context.Background(), "GET", "http://x/search", Fields{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://x/search", h.opts[OptURL])
}

func TestClient_Query_GetWithRaw(t *testing.T) {
	h := &fakeHandle{blocks: [][]string{okBlock("text/plain")}}
	client := newFakeClient(h)

	_, err := client.Query(context.Background(), "GET", "http://x/search", Raw("q=a%20b&page=2"), nil)
	require.NoError(t, err)

	assert.Equal(t, "http://x/search?q=a%20b&page=2", h.opts[OptURL])
}

func TestClient_Query_Body(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		params   Params
		headers  []string
		expected string
	}{
		{
			name:     "POST fields as JSON",
			method:   "POST",
			params:   Fields{F("name", "Cat")},
			headers:  []string{"Content-Type: application/json"},
			expected: `{"name":"Cat"}`,
		},
		{
			name:     "PUT fields as form",
			method:   "put",
			params:   Fields{F("name", "The Cat"), F("id", 7)},
			expected: "name=The+Cat&id=7",
		},
		{
			name:     "PATCH raw is passed through with JSON header",
			method:   "PATCH",
			params:   Raw("name=Alice"),
			headers:  []string{"accept: application/json"},
			expected: "name=Alice",
		},
		{
			name:     "DELETE without params",
			method:   "DELETE",
			headers:  []string{"Content-Type: application/json"},
			expected: "",
		},
		{
			name:     "JSON header in another header is ignored",
			method:   "POST",
			params:   Fields{F("a", "1")},
			headers:  []string{"X-Note: application/json"},
			expected: "a=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandle{blocks: [][]string{okBlock("text/plain")}}
			client := newFakeClient(h)

			_, err := client.Query(context.Background(), tt.method, "http://x/objects", tt.params, tt.headers)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, h.opts[OptPostFields])
			assert.Equal(t, true, h.opts[OptPost])
			assert.Equal(t, "http://x/objects", h.opts[OptURL])
			assert.Equal(t, strings.ToUpper(tt.method), h.opts[OptCustomRequest])
		})
	}
}

func TestClient_Query_HeadersPassedThrough(t *testing.T) {
	h := &fakeHandle{blocks: [][]string{okBlock("text/plain")}}
	client := newFakeClient(h)
	headers := []string{"Content-Type: application/json", "X-Token:  abc "}

	resp, err := client.Query(context.Background(), "POST", "http://x/", nil, headers)
	require.NoError(t, err)

	assert.Equal(t, headers, h.opts[OptHTTPHeader])
	assert.Equal(t, headers, resp.Opts["HTTPHEADER"])
}

func TestClient_Query_HeaderAndBodySplit(t *testing.T) {
	blocks := [][]string{
		{"HTTP/1.1 301 Moved Permanently\r\n", "Location: /a\r\n", "\r\n"},
		{"HTTP/1.1 302 Found\r\n", "Location: /b\r\n", "Content-Length: 0\r\n", "\r\n"},
		{"HTTP/1.1 200 OK\r\n", "Content-Type: text/plain\r\n", "X-Pad:   spaced   \r\n", "\r\n"},
	}
	body := "HTTP/1.1 looks like a header\r\n\r\nbut is body"
	h := &fakeHandle{blocks: blocks, body: body, info: Info{InfoContentType: "text/plain"}}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)
	require.NoError(t, err)

	n := 0
	for _, b := range blocks {
		n += len(b)
	}
	require.Len(t, resp.Headers, n)
	assert.Equal(t, "HTTP/1.1 301 Moved Permanently", resp.Headers[0])
	assert.Equal(t, "", resp.Headers[2])
	assert.Equal(t, "X-Pad:   spaced", resp.Headers[n-2])
	assert.Equal(t, body, resp.Body)
	assert.Len(t, resp.Body, len(body))
	assert.Nil(t, resp.Data)
	assert.True(t, resp.OK())
}

func TestClient_Query_DecodeJSON(t *testing.T) {
	h := &fakeHandle{
		blocks: [][]string{okBlock("application/json; charset=utf-8")},
		body:   `{"docs":[{"first_publish_year":1865}],"numFound":1}`,
		info:   Info{InfoContentType: "application/json; charset=utf-8", InfoHTTPCode: 200},
	}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://x/search.json", nil, nil)
	require.NoError(t, err)

	expected := map[string]any{
		"docs":     []any{map[string]any{"first_publish_year": float64(1865)}},
		"numFound": float64(1),
	}
	assert.Equal(t, expected, resp.Data)
	assert.Empty(t, resp.Err)
	assert.Equal(t, 200, resp.StatusCode())
}

func TestClient_Query_DecodeMalformedJSON(t *testing.T) {
	h := &fakeHandle{
		blocks: [][]string{okBlock("application/json")},
		body:   `{"broken":`,
		info:   Info{InfoContentType: "application/json"},
	}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)
	require.NoError(t, err)

	assert.Nil(t, resp.Data)
	assert.Contains(t, resp.Err, "JSON decode error")
	assert.Equal(t, `{"broken":`, resp.Body)
	assert.NotEmpty(t, resp.Headers)
}

func TestClient_Query_NonJSONIsNotDecoded(t *testing.T) {
	h := &fakeHandle{
		blocks: [][]string{okBlock("text/html")},
		body:   `{"valid":"json"}`,
		info:   Info{InfoContentType: "text/html"},
	}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)
	require.NoError(t, err)

	assert.Nil(t, resp.Data)
	assert.Empty(t, resp.Err)
}

func TestClient_Query_TransportError(t *testing.T) {
	h := &fakeHandle{err: errors.New("could not resolve host: nowhere")}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://nowhere/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "could not resolve host: nowhere", resp.Err)
	assert.Empty(t, resp.Body)
	assert.Nil(t, resp.Data)
	assert.False(t, resp.OK())
	assert.True(t, h.closed)
}

func TestClient_Query_SetOptionsError(t *testing.T) {
	h := &fakeHandle{setErr: errors.New("bad option")}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "bad option", resp.Err)
	assert.False(t, h.performed)
	assert.True(t, h.closed)
}

func TestClient_Query_TLSDisabled(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "https://x/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, false, h.opts[OptSSLVerifyPeer])
	assert.Equal(t, 0, h.opts[OptSSLVerifyHost])
	assert.NotContains(t, h.opts, OptCAInfo)
	assert.NotContains(t, h.opts, OptSSLKey)
	assert.NotContains(t, resp.Opts, "SSLCERT")
	assert.NotContains(t, resp.Opts, "SSLCERTPASSWD")
}

func TestClient_Query_TLSEnabled(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h)
	client.TLS = TLSConfig{Enabled: true, CAFile: "/etc/ca.pem"}

	resp, err := client.Query(context.Background(), "GET", "https://x/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, true, h.opts[OptSSLVerifyPeer])
	assert.Equal(t, 2, h.opts[OptSSLVerifyHost])
	assert.Equal(t, "/etc/ca.pem", resp.Opts["CAINFO"])
	assert.NotContains(t, resp.Opts, "SSLKEY")
}

func TestClient_Query_TLSClientCertificate(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h, WithTLS(TLSConfig{
		Enabled:     true,
		KeyFile:     "client.key",
		CertFile:    "client.crt",
		KeyPassword: "secret",
	}))

	resp, err := client.Query(context.Background(), "GET", "https://x/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "client.key", resp.Opts["SSLKEY"])
	assert.Equal(t, "client.crt", resp.Opts["SSLCERT"])
	assert.Equal(t, "secret", resp.Opts["SSLCERTPASSWD"])
}

func TestClient_Query_CertWithoutKeyIsIgnored(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h, WithTLS(TLSConfig{CertFile: "client.crt"}))

	resp, err := client.Query(context.Background(), "GET", "https://x/", nil, nil)
	require.NoError(t, err)

	assert.NotContains(t, resp.Opts, "SSLCERT")
}

func TestClient_Query_DebugRecord(t *testing.T) {
	h := &fakeHandle{
		blocks:     [][]string{okBlock("text/plain")},
		info:       Info{InfoTotalTime: 0.25, InfoHTTPCode: 200},
		traceLines: []string{"* Connected to x", "> GET / HTTP/1.1"},
	}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "* Connected to x\n> GET / HTTP/1.1\n", resp.Log)
	assert.Equal(t, 0.25, resp.Info[InfoTotalTime])
	assert.Equal(t, true, resp.Opts["VERBOSE"])
	assert.Contains(t, resp.Opts, "STDERR")
	assert.NotContains(t, resp.Opts, "HEADERFUNCTION")
	assert.Equal(t, 3, resp.Opts["MAXREDIRS"])
}

func TestClient_Query_BaselinePrecedence(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h, WithOption(OptMaxRedirs, 10), WithOption(OptTimeoutMS, 500))

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, resp.Opts["MAXREDIRS"])
	assert.Equal(t, 500, resp.Opts["TIMEOUT_MS"])
	assert.Equal(t, 3, defaultOptions()[OptMaxRedirs])
}

func TestClient_Query_StateDoesNotLeak(t *testing.T) {
	h := &fakeHandle{
		blocks: [][]string{okBlock("application/json")},
		body:   `{"id":"1"}`,
		info:   Info{InfoContentType: "application/json"},
	}
	client := newFakeClient(h)

	first, err := client.Query(context.Background(), "POST", "http://x/objects", Fields{F("name", "Cat")}, []string{"Content-Type: application/json"})
	require.NoError(t, err)

	h.blocks = [][]string{okBlock("text/plain")}
	h.body = "plain"
	h.info = Info{InfoContentType: "text/plain"}

	second, err := client.Query(context.Background(), "GET", "http://x/objects/1", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "1"}, first.Data)
	assert.Equal(t, `{"id":"1"}`, first.Body)
	assert.Len(t, first.Headers, 3)

	assert.Nil(t, second.Data)
	assert.Equal(t, "plain", second.Body)
	assert.Len(t, second.Headers, 3)
	assert.NotContains(t, h.opts, OptPostFields)
	assert.NotContains(t, h.opts, OptHTTPHeader)
}

func TestClient_Query_TraceSetupFailure(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h)
	client.newTrace = func() (traceSink, error) {
		return nil, errors.New("no space left")
	}

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrSetup)
	assert.False(t, h.performed)
}

func TestClient_Query_OpenFailure(t *testing.T) {
	client := NewClient(WithTransport(TransportFunc(func() (Handle, error) {
		return nil, errors.New("too many open files")
	})))

	resp, err := client.Query(context.Background(), "GET", "http://x/", nil, nil)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrSetup)
	assert.Contains(t, err.Error(), "too many open files")
}

func TestClient_Query_JSONEncodeFailure(t *testing.T) {
	h := &fakeHandle{}
	client := newFakeClient(h)

	resp, err := client.Query(context.Background(), "POST", "http://x/", Fields{F("ch", make(chan int))}, []string{"Content-Type: application/json"})

	assert.Nil(t, resp)
	assert.Error(t, err)
	assert.False(t, h.performed)
}

func TestMemoryTrace_ConcurrentWriteAndRead(t *testing.T) {
	sink, err := newMemoryTrace()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fmt.Fprintf(sink, "* connect to 10.0.0.%d failed\n", j)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		_ = sink.String()
	}
	wg.Wait()

	assert.Equal(t, 400, strings.Count(sink.String(), "\n"))
}

func TestClient_ZeroValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"method":"` + r.Method + `"}`))
	}))
	defer server.Close()

	var client Client
	resp, err := client.Query(context.Background(), "post", server.URL, Fields{F("a", "1")}, nil)
	require.NoError(t, err)

	assert.Empty(t, resp.Err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, map[string]any{"method": "POST"}, resp.Data)
	assert.Contains(t, resp.Log, "> POST /")
	assert.Equal(t, defaultOptions(), client.Baseline())
}
