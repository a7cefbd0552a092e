package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Params is the parameter set of a query. It is either Raw or Fields; a nil
// Params means no parameters.
type Params interface {
	isParams()
}

// Raw is a pre-encoded query string (GET) or a literal request body.
type Raw string

func (Raw) isParams() {}

// Field is a single named parameter. Value may be a scalar, a nested Fields,
// a map[string]any or a slice.
type Field struct {
	Name  string
	Value any
}

// Fields is an ordered parameter mapping.
type Fields []Field

func (Fields) isParams() {}

// F is shorthand for building a Field.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Get returns the value of the first field with the given name.
func (f Fields) Get(name string) (any, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing field or appends a new one.
func (f Fields) Set(name string, value any) Fields {
	for i := range f {
		if f[i].Name == name {
			out := append(Fields(nil), f...)
			out[i].Value = value
			return out
		}
	}
	return append(append(Fields(nil), f...), F(name, value))
}

// Encode URL-encodes the fields in order. Nested values produce bracketed
// keys (data[type]=animal, tags[0]=a); nil values are skipped.
func (f Fields) Encode() string {
	var parts []string
	for _, field := range f {
		parts = appendEncoded(parts, url.QueryEscape(field.Name), field.Value)
	}
	return strings.Join(parts, "&")
}

func appendEncoded(parts []string, key string, value any) []string {
	switch v := value.(type) {
	case nil:
		return parts
	case Fields:
		for _, field := range v {
			parts = appendEncoded(parts, key+"%5B"+url.QueryEscape(field.Name)+"%5D", field.Value)
		}
		return parts
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = appendEncoded(parts, key+"%5B"+url.QueryEscape(k)+"%5D", v[k])
		}
		return parts
	case []any:
		for i, item := range v {
			parts = appendEncoded(parts, key+"%5B"+strconv.Itoa(i)+"%5D", item)
		}
		return parts
	case []string:
		for i, item := range v {
			parts = appendEncoded(parts, key+"%5B"+strconv.Itoa(i)+"%5D", item)
		}
		return parts
	}
	return append(parts, key+"="+url.QueryEscape(scalarString(value)))
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return fmt.Sprint(value)
}

// MarshalJSON encodes the fields as a JSON object, keeping their order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonHeader matches request headers announcing a JSON payload.
var jsonHeader = regexp.MustCompile(`(?i)(content-type|accept)\s*:\s*application/.*json`)

// wantsJSON reports whether any header line asks for a JSON body.
func wantsJSON(headers []string) bool {
	for _, h := range headers {
		if jsonHeader.MatchString(h) {
			return true
		}
	}
	return false
}

// queryString renders params for use after "?" in a URL. Raw params are
// used verbatim.
func queryString(p Params) string {
	switch v := p.(type) {
	case Raw:
		return string(v)
	case Fields:
		return v.Encode()
	}
	return ""
}

// requestBody renders params as a request body. Fields become JSON when
// asJSON is set and are URL-encoded otherwise; Raw is never re-encoded.
func requestBody(p Params, asJSON bool) (string, error) {
	switch v := p.(type) {
	case Raw:
		return string(v), nil
	case Fields:
		if len(v) == 0 {
			return "", nil
		}
		if !asJSON {
			return v.Encode(), nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encoding JSON body: %w", err)
		}
		return string(b), nil
	}
	return "", nil
}
