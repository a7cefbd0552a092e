package http

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Option identifies a single transfer setting understood by a Transport.
// The numeric values follow the libcurl option numbering so that option
// dumps stay comparable with curl traces.
type Option int

// Transfer options.
const (
	OptVerbose          Option = 41
	OptHeader           Option = 42
	OptPost             Option = 47
	OptFollowLocation   Option = 52
	OptSSLVerifyPeer    Option = 64
	OptMaxRedirs        Option = 68
	OptSSLVerifyHost    Option = 81
	OptTimeoutMS        Option = 155
	OptConnectTimeoutMS Option = 156
	OptURL              Option = 10002
	OptPostFields       Option = 10015
	OptUserAgent        Option = 10018
	OptHTTPHeader       Option = 10023
	OptSSLCert          Option = 10025
	OptSSLCertPasswd    Option = 10026
	OptCustomRequest    Option = 10036
	OptStderr           Option = 10037
	OptCAInfo           Option = 10065
	OptSSLKey           Option = 10087
	OptEncoding         Option = 10102
	OptReturnTransfer   Option = 19913
	OptBinaryTransfer   Option = 19914
	OptHeaderFunction   Option = 20079
)

// mnemonics is the display name table used when dumping options.
var mnemonics = map[Option]string{
	OptVerbose:          "VERBOSE",
	OptHeader:           "HEADER",
	OptPost:             "POST",
	OptFollowLocation:   "FOLLOWLOCATION",
	OptSSLVerifyPeer:    "SSL_VERIFYPEER",
	OptMaxRedirs:        "MAXREDIRS",
	OptSSLVerifyHost:    "SSL_VERIFYHOST",
	OptTimeoutMS:        "TIMEOUT_MS",
	OptConnectTimeoutMS: "CONNECTTIMEOUT_MS",
	OptURL:              "URL",
	OptPostFields:       "POSTFIELDS",
	OptUserAgent:        "USERAGENT",
	OptHTTPHeader:       "HTTPHEADER",
	OptSSLCert:          "SSLCERT",
	OptSSLCertPasswd:    "SSLCERTPASSWD",
	OptCustomRequest:    "CUSTOMREQUEST",
	OptStderr:           "STDERR",
	OptCAInfo:           "CAINFO",
	OptSSLKey:           "SSLKEY",
	OptEncoding:         "ENCODING",
	OptReturnTransfer:   "RETURNTRANSFER",
	OptBinaryTransfer:   "BINARYTRANSFER",
	OptHeaderFunction:   "HEADERFUNCTION",
}

// String returns the mnemonic of the option, or its number when unknown.
func (o Option) String() string {
	if name, ok := mnemonics[o]; ok {
		return name
	}
	return strconv.Itoa(int(o))
}

// ParseOption resolves a mnemonic (case-insensitive) or a decimal option
// number back to an Option.
func ParseOption(name string) (Option, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for opt, mnemonic := range mnemonics {
		if mnemonic == upper {
			return opt, nil
		}
	}
	if n, err := strconv.Atoi(upper); err == nil {
		return Option(n), nil
	}
	return 0, fmt.Errorf("unknown option %q", name)
}

// HeaderFunc receives every raw response header line, including the status
// line and the blank line closing each header block. It returns the number
// of bytes it consumed.
type HeaderFunc func(line string) int

// Options is a set of transfer options keyed by identifier.
type Options map[Option]any

// defaultOptions returns the baseline applied to every query.
func defaultOptions() Options {
	return Options{
		OptReturnTransfer: true,
		OptHeader:         true,
		OptBinaryTransfer: true,
		OptEncoding:       "",
		OptFollowLocation: true,
		OptMaxRedirs:      3,
	}
}

// Clone returns a shallow copy of the set.
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// add sets opt only when it is not present yet; values already in the set
// take precedence.
func (o Options) add(opt Option, value any) {
	if _, ok := o[opt]; !ok {
		o[opt] = value
	}
}

// Mnemonics renders the set for inspection: keys become mnemonics, the
// header callback is dropped and writers are replaced by their type name.
func (o Options) Mnemonics() map[string]any {
	res := make(map[string]any, len(o))
	for k, v := range o {
		if k == OptHeaderFunction {
			continue
		}
		if w, ok := v.(io.Writer); ok {
			v = fmt.Sprintf("%T", w)
		}
		res[k.String()] = v
	}
	return res
}

// Bool reports the option as a boolean. Integers are true when non-zero.
func (o Options) Bool(opt Option) bool {
	switch v := o[opt].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Int reports the option as an integer, or def when it is absent or not
// numeric.
func (o Options) Int(opt Option, def int) int {
	switch v := o[opt].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// String reports the option as a string; empty when absent.
func (o Options) String(opt Option) string {
	switch v := o[opt].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Strings reports the option as a list of strings.
func (o Options) Strings(opt Option) []string {
	switch v := o[opt].(type) {
	case []string:
		return v
	case []any:
		res := make([]string, 0, len(v))
		for _, s := range v {
			res = append(res, fmt.Sprint(s))
		}
		return res
	case string:
		return []string{v}
	}
	return nil
}

// Has reports whether opt is present.
func (o Options) Has(opt Option) bool {
	_, ok := o[opt]
	return ok
}
