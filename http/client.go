package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TLSConfig holds the TLS settings applied to every query of a Client.
type TLSConfig struct {
	// Enabled turns on peer and host certificate verification.
	Enabled bool

	// CAFile is a PEM bundle used to verify the server certificate.
	CAFile string

	// KeyFile is the client private key. Client authentication is only
	// configured when it is set.
	KeyFile string

	// CertFile is the client certificate.
	CertFile string

	// KeyPassword decrypts an encrypted KeyFile.
	KeyPassword string
}

// traceSink receives the verbose transfer trace of one query.
type traceSink interface {
	Write(p []byte) (int, error)
	String() string
	Close() error
}

// memoryTrace buffers the trace in memory. httptrace callbacks can fire
// after Perform returns, so writes and reads are locked.
type memoryTrace struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (m *memoryTrace) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *memoryTrace) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

func (*memoryTrace) Close() error { return nil }

func newMemoryTrace() (traceSink, error) {
	return &memoryTrace{}, nil
}

// Client performs queries and packages their outcome into Response values.
//
// A Client keeps per-call state on the instance and must not be used by
// several goroutines at once; give each goroutine its own Client.
//
// The zero value is usable and behaves like NewClient() with no options.
type Client struct {
	// TLS is applied to every query. Set it before calling Query.
	TLS TLSConfig

	transport Transport
	baseline  Options
	logger    zerolog.Logger
	newTrace  func() (traceSink, error)

	// per-call state, reset by Query
	method     string
	url        string
	params     Params
	hdr        []string
	opts       Options
	body       string
	data       any
	headers    []string
	headersLen int
	err        string
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new client with the given options.
//
// Example:
//
//	client := http.NewClient(
//	    http.WithOption(http.OptTimeoutMS, 10000),
//	    http.WithTLS(http.TLSConfig{Enabled: true}),
//	)
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		transport: NewNetTransport(),
		baseline:  defaultOptions(),
		logger:    zerolog.Nop(),
		newTrace:  newMemoryTrace,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// WithTransport replaces the transport used to perform transfers.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTLS sets the TLS configuration.
func WithTLS(cfg TLSConfig) ClientOption {
	return func(c *Client) {
		c.TLS = cfg
	}
}

// WithOption overrides a baseline option. Baseline options take precedence
// over the values Query computes for the same option.
func WithOption(opt Option, value any) ClientOption {
	return func(c *Client) {
		c.baseline[opt] = value
	}
}

// WithLogger sets the logger used for per-query debug events.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Baseline returns a copy of the options applied to every query.
func (c *Client) Baseline() Options {
	return c.baseline.Clone()
}

// Query performs one request.
//
// For GET the params are appended to url as a query string. For any other
// method they become the body: Raw verbatim, Fields URL-encoded, or JSON
// encoded when a Content-Type or Accept header names a JSON media type.
// headers are literal "Name: value" lines.
//
// Transport failures and HTTP error statuses do not produce an error; they
// are reported through the Response. An error is returned only when the
// query cannot be set up.
func (c *Client) Query(ctx context.Context, method, url string, params Params, headers []string) (*Response, error) {
	c.reset()

	c.method = strings.ToUpper(method)
	c.url = url
	c.params = params
	c.hdr = headers

	c.opts.add(OptCustomRequest, c.method)
	if len(c.hdr) > 0 {
		c.opts.add(OptHTTPHeader, append([]string(nil), c.hdr...))
	}
	if err := c.addParameters(); err != nil {
		return nil, err
	}
	c.addTLS()

	trace, err := c.newTrace()
	if err != nil {
		return nil, fmt.Errorf("%w: trace buffer: %v", ErrSetup, err)
	}
	defer trace.Close()
	c.opts.add(OptVerbose, true)
	c.opts.add(OptStderr, trace)
	opts := c.opts.Mnemonics()

	h, err := c.transport.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: transport handle: %v", ErrSetup, err)
	}
	defer h.Close()

	var raw []byte
	if err := h.SetOptions(c.opts); err != nil {
		c.err = err.Error()
	} else {
		var perr error
		raw, perr = h.Perform(ctx)
		if perr != nil {
			c.err = perr.Error()
		}
	}
	if c.headersLen < len(raw) {
		c.body = string(raw[c.headersLen:])
	}

	info := h.Info()
	if info == nil {
		info = Info{}
	}
	c.decode(info.String(InfoContentType))

	resp := &Response{
		Body:    c.body,
		Data:    c.data,
		Headers: c.headers,
		Err:     c.err,
		Opts:    opts,
		Info:    info,
		Log:     trace.String(),
	}

	c.logger.Debug().
		Str("query_id", uuid.NewString()).
		Str("method", c.method).
		Str("url", info.String(InfoURL)).
		Int("http_code", resp.StatusCode()).
		Dur("total_time", resp.TotalTime()).
		Int("headers", len(resp.Headers)).
		Int("body_bytes", len(resp.Body)).
		Str("err", resp.Err).
		Msg("query done")

	return resp, nil
}

// reset clears everything left over from the previous query.
func (c *Client) reset() {
	if c.transport == nil {
		c.transport = NewNetTransport()
	}
	if c.baseline == nil {
		c.baseline = defaultOptions()
	}
	if c.newTrace == nil {
		c.newTrace = newMemoryTrace
	}
	c.opts = c.baseline.Clone()
	c.opts.add(OptHeaderFunction, HeaderFunc(c.onHeader))
	c.body = ""
	c.data = nil
	c.headers = []string{}
	c.headersLen = 0
	c.err = ""
}

// onHeader is the streaming header callback: it records the trimmed line
// and counts its raw length so the header section can be cut from the body.
func (c *Client) onHeader(line string) int {
	c.headers = append(c.headers, strings.TrimSpace(line))
	c.headersLen += len(line)
	return len(line)
}

func (c *Client) addParameters() error {
	if c.method == "GET" {
		u := c.url
		if q := queryString(c.params); q != "" {
			u += "?" + q
		}
		c.opts.add(OptURL, u)
		c.opts.add(OptPost, false)
		return nil
	}

	body, err := requestBody(c.params, wantsJSON(c.hdr))
	if err != nil {
		return err
	}
	c.opts.add(OptPostFields, body)
	c.opts.add(OptPost, true)
	c.opts.add(OptURL, c.url)
	return nil
}

func (c *Client) addTLS() {
	verifyHost := 0
	if c.TLS.Enabled {
		verifyHost = 2
	}
	c.opts.add(OptSSLVerifyPeer, c.TLS.Enabled)
	c.opts.add(OptSSLVerifyHost, verifyHost)

	if c.TLS.CAFile != "" {
		c.opts.add(OptCAInfo, c.TLS.CAFile)
	}
	if c.TLS.KeyFile != "" {
		c.opts.add(OptSSLKey, c.TLS.KeyFile)
		c.opts.add(OptSSLCert, c.TLS.CertFile)
		c.opts.add(OptSSLCertPasswd, c.TLS.KeyPassword)
	}
}

// decode fills data when the content type announces JSON.
func (c *Client) decode(contentType string) {
	if !strings.Contains(contentType, "application/json") {
		return
	}
	var data any
	if err := json.Unmarshal([]byte(c.body), &data); err != nil {
		c.err += "\nJSON decode error: " + err.Error()
		return
	}
	c.data = data
}
