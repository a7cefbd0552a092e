package http

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NetTransport performs transfers with net/http. Redirects are followed by
// the handle itself so that every hop's header block is reported.
type NetTransport struct {
	// Proxy selects the proxy for each request. It defaults to
	// http.ProxyFromEnvironment.
	Proxy func(*http.Request) (*url.URL, error)
}

// NewNetTransport creates a transport using the environment proxy settings.
func NewNetTransport() *NetTransport {
	return &NetTransport{Proxy: http.ProxyFromEnvironment}
}

// Open returns a fresh handle.
func (t *NetTransport) Open() (Handle, error) {
	return &netHandle{proxy: t.Proxy, info: Info{}}, nil
}

// netHandle is a single-use transfer.
type netHandle struct {
	proxy func(*http.Request) (*url.URL, error)

	mu       sync.Mutex
	opts     Options
	onHeader HeaderFunc
	trace    io.Writer
	info     Info
	closed   bool

	transport *http.Transport
}

// phases holds the marks collected by httptrace for one hop.
type phases struct {
	dnsDone      time.Time
	connectDone  time.Time
	tlsDone      time.Time
	gotConn      time.Time
	firstByte    time.Time
	remoteAddr   net.Addr
	localAddr    net.Addr
	requestBytes int
}

// SetOptions stores the options for Perform.
func (h *netHandle) SetOptions(opts Options) error {
	if h.closed {
		return errors.New("handle is closed")
	}
	h.opts = opts.Clone()

	switch fn := opts[OptHeaderFunction].(type) {
	case nil:
		h.onHeader = nil
	case HeaderFunc:
		h.onHeader = fn
	case func(string) int:
		h.onHeader = fn
	default:
		return fmt.Errorf("option %s: unsupported callback %T", OptHeaderFunction, fn)
	}

	h.trace = io.Discard
	if opts.Bool(OptVerbose) {
		w, ok := opts[OptStderr].(io.Writer)
		if !ok {
			return fmt.Errorf("option %s: not a writer", OptStderr)
		}
		h.trace = w
	}
	return nil
}

// Perform runs the transfer, following redirects when asked to.
func (h *netHandle) Perform(ctx context.Context) ([]byte, error) {
	if h.closed {
		return nil, errors.New("handle is closed")
	}
	if h.opts == nil {
		h.opts = Options{}
		h.trace = io.Discard
	}
	opts := h.opts

	start := time.Now()
	if ms := opts.Int(OptTimeoutMS, 0); ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	tlsConfig, err := newTLSConfig(opts)
	if err != nil {
		h.tracef("* %v", err)
		h.info = Info{InfoTotalTime: elapsed(time.Since(start))}
		return nil, err
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if ms := opts.Int(OptConnectTimeoutMS, 0); ms > 0 {
		dialer.Timeout = time.Duration(ms) * time.Millisecond
	}
	h.transport = &http.Transport{
		Proxy:               h.proxy,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: dialer.Timeout,
		DisableCompression:  true,
	}
	client := &http.Client{
		Transport: h.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	method := opts.String(OptCustomRequest)
	if method == "" {
		method = http.MethodGet
		if opts.Bool(OptPost) {
			method = http.MethodPost
		}
	}
	target := opts.String(OptURL)
	if target != "" && !strings.Contains(target, "://") {
		target = "http://" + target
	}
	follow := opts.Bool(OptFollowLocation)
	maxRedirs := opts.Int(OptMaxRedirs, -1)
	withHeader := opts.Bool(OptHeader)

	var (
		raw          bytes.Buffer
		headerSize   int
		requestSize  int
		uploaded     int
		redirects    int
		redirectTime time.Duration
		hop          phases
		resp         *http.Response
	)

	info := func() Info {
		i := Info{
			InfoURL:             target,
			InfoHeaderSize:      headerSize,
			InfoRequestSize:     requestSize,
			InfoRedirectCount:   redirects,
			InfoRedirectURL:     "",
			InfoRedirectTime:    elapsed(redirectTime),
			InfoTotalTime:       elapsed(time.Since(start)),
			InfoSizeUpload:      uploaded,
			InfoSizeDownload:    raw.Len() - headerSizeIn(withHeader, headerSize),
			InfoEffectiveMethod: method,
			InfoSSLVerifyResult: 0,
			InfoHTTPCode:        0,
			InfoContentType:     nil,
		}
		if u, perr := url.Parse(target); perr == nil {
			i[InfoScheme] = strings.ToUpper(u.Scheme)
		}
		i[InfoNameLookupTime] = sinceStart(start, hop.dnsDone)
		i[InfoConnectTime] = sinceStart(start, hop.connectDone)
		i[InfoAppConnectTime] = sinceStart(start, hop.tlsDone)
		i[InfoPretransferTime] = sinceStart(start, hop.gotConn)
		i[InfoStartTransferTime] = sinceStart(start, hop.firstByte)
		if host, port, ok := splitAddr(hop.remoteAddr); ok {
			i[InfoPrimaryIP], i[InfoPrimaryPort] = host, port
		}
		if host, port, ok := splitAddr(hop.localAddr); ok {
			i[InfoLocalIP], i[InfoLocalPort] = host, port
		}
		if resp != nil {
			i[InfoHTTPCode] = resp.StatusCode
			if ct := resp.Header.Get("Content-Type"); ct != "" {
				i[InfoContentType] = ct
			}
			i[InfoHTTPVersion] = protoName(resp)
			if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= 300 && resp.StatusCode < 400 {
				if next, perr := resp.Request.URL.Parse(loc); perr == nil {
					i[InfoRedirectURL] = next.String()
				}
			}
		}
		return i
	}

	for {
		hopStart := time.Now()
		hop = phases{}

		req, err := h.newRequest(ctx, method, target, &hop)
		if err != nil {
			h.tracef("* %v", err)
			h.info = info()
			return raw.Bytes(), err
		}
		if req.ContentLength > 0 {
			uploaded += int(req.ContentLength)
		}

		resp, err = client.Do(req)
		if err != nil {
			resp = nil
			h.tracef("* %v", err)
			h.info = info()
			return raw.Bytes(), err
		}
		requestSize += hop.requestBytes

		for _, line := range headerBlock(resp) {
			h.tracef("< %s", strings.TrimRight(line, "\r\n"))
			if h.onHeader != nil {
				h.onHeader(line)
			}
			if withHeader {
				raw.WriteString(line)
			}
			headerSize += len(line)
		}

		location := resp.Header.Get("Location")
		if follow && location != "" && isRedirect(resp.StatusCode) {
			if maxRedirs >= 0 && redirects >= maxRedirs {
				_, _ = io.Copy(&raw, resp.Body)
				resp.Body.Close()
				err := fmt.Errorf("maximum (%d) redirects followed", maxRedirs)
				h.tracef("* %v", err)
				h.info = info()
				return raw.Bytes(), err
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			next, err := resp.Request.URL.Parse(location)
			if err != nil {
				err = fmt.Errorf("bad redirect location %q: %w", location, err)
				h.tracef("* %v", err)
				h.info = info()
				return raw.Bytes(), err
			}
			redirects++
			redirectTime += time.Since(hopStart)
			target = next.String()
			h.tracef("* Issue another request to this URL: '%s'", target)
			continue
		}

		if opts.Has(OptEncoding) {
			err = decodeBody(&raw, resp)
		} else {
			_, err = io.Copy(&raw, resp.Body)
		}
		resp.Body.Close()
		if err != nil {
			err = fmt.Errorf("failure when receiving data from the peer: %w", err)
			h.tracef("* %v", err)
		} else {
			h.tracef("* Connection to host %s left intact", resp.Request.URL.Host)
		}
		h.info = info()
		return raw.Bytes(), err
	}
}

// newRequest builds one hop's request with tracing attached.
func (h *netHandle) newRequest(ctx context.Context, method, target string, hop *phases) (*http.Request, error) {
	opts := h.opts

	var body io.Reader
	if opts.Bool(OptPost) {
		body = strings.NewReader(opts.String(OptPostFields))
	}

	ctx = httptrace.WithClientTrace(ctx, h.clientTrace(method, target, hop))
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("URL rejected: %w", err)
	}

	removed := applyHeaderLines(req, opts.Strings(OptHTTPHeader))

	if ua := opts.String(OptUserAgent); ua != "" {
		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", ua)
		}
	}
	if opts.Has(OptEncoding) && req.Header.Get("Accept-Encoding") == "" && !removed["Accept-Encoding"] {
		enc := opts.String(OptEncoding)
		if enc == "" {
			enc = supportedEncodings
		}
		req.Header.Set("Accept-Encoding", enc)
	}
	if body != nil && req.Header.Get("Content-Type") == "" && !removed["Content-Type"] {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

// supportedEncodings is advertised when ENCODING is set to "".
const supportedEncodings = "gzip, deflate"

// decodeBody copies resp.Body into dst, undoing a gzip or deflate
// Content-Encoding. The response headers are left as the server sent them.
func decodeBody(dst *bytes.Buffer, resp *http.Response) error {
	var src io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		compressed, err := io.ReadAll(resp.Body)
		if err != nil || len(compressed) == 0 {
			return err
		}
		zr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return fmt.Errorf("error while processing content unencoding: %w", err)
		}
		defer zr.Close()
		src = zr
	case "deflate":
		compressed, err := io.ReadAll(resp.Body)
		if err != nil || len(compressed) == 0 {
			return err
		}
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return fmt.Errorf("error while processing content unencoding: %w", err)
		}
		defer zr.Close()
		src = zr
	}
	_, err := io.Copy(dst, src)
	return err
}

// clientTrace records phase marks into hop and writes the verbose trace.
func (h *netHandle) clientTrace(method, target string, hop *phases) *httptrace.ClientTrace {
	requestLine := method + " " + target
	if u, err := url.Parse(target); err == nil {
		requestLine = method + " " + u.RequestURI()
	}
	return &httptrace.ClientTrace{
		DNSStart: func(info httptrace.DNSStartInfo) {
			h.tracef("* Resolving %s", info.Host)
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			h.mu.Lock()
			hop.dnsDone = time.Now()
			h.mu.Unlock()
		},
		ConnectStart: func(network, addr string) {
			h.tracef("*   Trying %s...", addr)
		},
		ConnectDone: func(network, addr string, err error) {
			if err != nil {
				h.tracef("* connect to %s failed: %v", addr, err)
				return
			}
			h.mu.Lock()
			hop.connectDone = time.Now()
			h.mu.Unlock()
			h.tracef("* Connected to %s", addr)
		},
		TLSHandshakeStart: func() {
			h.tracef("* TLS handshake")
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if err != nil {
				h.tracef("* TLS handshake failed: %v", err)
				return
			}
			h.mu.Lock()
			hop.tlsDone = time.Now()
			h.mu.Unlock()
			h.tracef("* SSL connection using %s / %s", tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite))
			if state.NegotiatedProtocol != "" {
				h.tracef("* ALPN: server accepted %s", state.NegotiatedProtocol)
			}
			if len(state.PeerCertificates) > 0 {
				cert := state.PeerCertificates[0]
				h.tracef("* Server certificate:")
				h.tracef("*  subject: %s", cert.Subject)
				h.tracef("*  expire date: %s", cert.NotAfter.UTC().Format(time.RFC1123))
				h.tracef("*  issuer: %s", cert.Issuer)
			}
		},
		GotConn: func(info httptrace.GotConnInfo) {
			h.mu.Lock()
			hop.gotConn = time.Now()
			hop.remoteAddr = info.Conn.RemoteAddr()
			hop.localAddr = info.Conn.LocalAddr()
			h.mu.Unlock()
			if info.Reused {
				h.tracef("* Re-using existing connection with host %s", info.Conn.RemoteAddr())
			}
			h.tracef("> %s", requestLine)
		},
		WroteHeaderField: func(key string, value []string) {
			line := key + ": " + strings.Join(value, ", ")
			h.mu.Lock()
			hop.requestBytes += len(line) + 2
			h.mu.Unlock()
			h.tracef("> %s", line)
		},
		WroteHeaders: func() {
			h.tracef(">")
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err != nil {
				h.tracef("* send failure: %v", info.Err)
			}
		},
		GotFirstResponseByte: func() {
			h.mu.Lock()
			hop.firstByte = time.Now()
			h.mu.Unlock()
		},
	}
}

// tracef writes one line of the verbose trace.
func (h *netHandle) tracef(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.trace == nil {
		return
	}
	fmt.Fprintf(h.trace, format+"\n", args...)
}

// Info returns the metadata of the last Perform.
func (h *netHandle) Info() Info {
	return h.info
}

// Close releases idle connections held by the handle.
func (h *netHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.transport != nil {
		h.transport.CloseIdleConnections()
	}
	return nil
}

// applyHeaderLines adds "Name: value" lines to req. "Name:" removes the
// header and "Name;" sends it with an empty value. It returns the set of
// canonical names that were removed.
func applyHeaderLines(req *http.Request, lines []string) map[string]bool {
	removed := map[string]bool{}
	for _, line := range lines {
		if i := strings.IndexByte(line, ':'); i >= 0 {
			name := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:i]))
			value := strings.TrimSpace(line[i+1:])
			switch {
			case name == "Host":
				req.Host = value
			case value == "":
				req.Header.Del(name)
				if name == "User-Agent" {
					req.Header[name] = []string{""}
				}
				removed[name] = true
			default:
				req.Header.Add(name, value)
			}
			continue
		}
		if name, ok := strings.CutSuffix(strings.TrimSpace(line), ";"); ok && name != "" {
			key := textproto.CanonicalMIMEHeaderKey(name)
			req.Header[key] = append(req.Header[key], "")
		}
	}
	return removed
}

// headerBlock renders the response head as CRLF-terminated lines: the
// status line, one line per header value in canonical name order, and the
// closing blank line.
func headerBlock(resp *http.Response) []string {
	lines := []string{fmt.Sprintf("%s %s\r\n", protoName(resp), resp.Status)}

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range resp.Header[name] {
			lines = append(lines, name+": "+value+"\r\n")
		}
	}
	return append(lines, "\r\n")
}

func protoName(resp *http.Response) string {
	if resp.ProtoMajor >= 2 {
		return "HTTP/" + strconv.Itoa(resp.ProtoMajor)
	}
	if resp.Proto != "" {
		return resp.Proto
	}
	return "HTTP/1.1"
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func headerSizeIn(included bool, size int) int {
	if included {
		return size
	}
	return 0
}

func splitAddr(addr net.Addr) (string, int, bool) {
	if addr == nil {
		return "", 0, false
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, false
	}
	p, _ := strconv.Atoi(port)
	return host, p, true
}

func sinceStart(start, mark time.Time) float64 {
	if mark.IsZero() {
		return 0
	}
	return elapsed(mark.Sub(start))
}

func elapsed(d time.Duration) float64 {
	return d.Seconds()
}
