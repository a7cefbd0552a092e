// Package jsonpath pulls single values out of JSON response bodies.
//
// Paths may be written JSONPath style ($.docs[0].title) or directly in gjson
// syntax (docs.0.title).
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the value at path as a string. Objects and arrays are
// returned as raw JSON, null as "null".
func Extract(json string, path string) (string, error) {
	if json == "" {
		return "", fmt.Errorf("empty JSON string")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.Valid(json) {
		return "", fmt.Errorf("invalid JSON")
	}

	result := gjson.Get(json, toGJSON(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	if result.IsObject() || result.IsArray() {
		return result.Raw, nil
	}
	return result.String(), nil
}

// ExtractAll extracts every path in order. It stops at the first failure.
func ExtractAll(json string, paths []string) ([]string, error) {
	values := make([]string, 0, len(paths))
	for _, path := range paths {
		v, err := Extract(json, path)
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Exists reports whether path resolves to a value in json.
func Exists(json string, path string) bool {
	if path == "" {
		return false
	}
	return gjson.Get(json, toGJSON(path)).Exists()
}

// toGJSON rewrites a JSONPath expression into gjson syntax.
func toGJSON(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				b.WriteString(path[i:])
				return b.String()
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(key)
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
