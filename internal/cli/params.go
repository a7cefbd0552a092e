package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/naivic/envelope/http"
)

// paramsValue collects repeated -p flags into ordered fields.
//
//	-p q=alice            string value
//	-p data[type]=animal  nested field
//	-p count:=3           raw JSON value
type paramsValue struct {
	fields http.Fields
}

var _ pflag.Value = (*paramsValue)(nil)

func (p *paramsValue) String() string {
	return p.fields.Encode()
}

func (p *paramsValue) Type() string {
	return "name=value"
}

func (p *paramsValue) Set(s string) error {
	name, value, err := parseParam(s)
	if err != nil {
		return err
	}
	path, err := splitPath(name)
	if err != nil {
		return err
	}
	p.fields = setPath(p.fields, path, value)
	return nil
}

// Fields returns the collected fields, or nil when none were given.
func (p *paramsValue) Fields() http.Fields {
	return p.fields
}

func parseParam(s string) (string, any, error) {
	eq := strings.Index(s, "=")
	if eq <= 0 {
		return "", nil, fmt.Errorf("invalid parameter %q: expected name=value", s)
	}

	if s[eq-1] == ':' {
		name := s[:eq-1]
		if name == "" {
			return "", nil, fmt.Errorf("invalid parameter %q: empty name", s)
		}
		var value any
		if err := json.Unmarshal([]byte(s[eq+1:]), &value); err != nil {
			return "", nil, fmt.Errorf("invalid JSON value for %s: %w", name, err)
		}
		return name, value, nil
	}

	return s[:eq], s[eq+1:], nil
}

// splitPath turns "data[type][name]" into ["data", "type", "name"].
func splitPath(name string) ([]string, error) {
	open := strings.Index(name, "[")
	if open < 0 {
		return []string{name}, nil
	}
	if open == 0 {
		return nil, fmt.Errorf("invalid parameter name %q", name)
	}

	path := []string{name[:open]}
	rest := name[open:]
	for rest != "" {
		end := strings.Index(rest, "]")
		if rest[0] != '[' || end < 0 {
			return nil, fmt.Errorf("invalid parameter name %q", name)
		}
		key := rest[1:end]
		if key == "" {
			return nil, fmt.Errorf("invalid parameter name %q: empty key", name)
		}
		path = append(path, key)
		rest = rest[end+1:]
	}
	return path, nil
}

func setPath(fields http.Fields, path []string, value any) http.Fields {
	if len(path) == 1 {
		return fields.Set(path[0], value)
	}
	child, _ := fields.Get(path[0])
	nested, _ := child.(http.Fields)
	return fields.Set(path[0], setPath(nested, path[1:], value))
}
