package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/naivic/envelope/http"
)

// Config is the top-level configuration file.
type Config struct {
	DefaultProfile string             `json:"default_profile,omitempty" yaml:"default_profile,omitempty" toml:"default_profile,omitempty"`
	LogLevel       string             `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	History        string             `json:"history,omitempty" yaml:"history,omitempty" toml:"history,omitempty"`
	Profiles       map[string]Profile `json:"profiles,omitempty" yaml:"profiles,omitempty" toml:"profiles,omitempty"`
}

// Profile is a named set of defaults for queries against one API.
type Profile struct {
	BaseURL   string            `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Headers   []string          `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
	Options   map[string]any    `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	TLS       TLS               `json:"tls,omitempty" yaml:"tls,omitempty" toml:"tls,omitempty"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" toml:"variables,omitempty"`
}

// TLS mirrors http.TLSConfig with file-friendly names.
type TLS struct {
	Enabled  bool   `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	CA       string `json:"ca,omitempty" yaml:"ca,omitempty" toml:"ca,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty" toml:"key,omitempty"`
	Cert     string `json:"cert,omitempty" yaml:"cert,omitempty" toml:"cert,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
}

// DefaultPath returns ~/.envelope/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".envelope", "config.yaml")
	}
	return ""
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data, path)
	if err != nil {
		return nil, err
	}

	if errs := Validate(cfg); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid config %s: %w", path, errors.Join(joined...))
	}
	return cfg, nil
}

// LoadOrDefault loads path, or the default file when path is empty. A
// missing default file yields an empty configuration.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	path = DefaultPath()
	if path == "" {
		return &Config{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return Load(path)
}

// Parse decodes configuration data. The format follows the extension of
// path: .json, .toml, or YAML for anything else.
func Parse(data []byte, path string) (*Config, error) {
	var cfg Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return &cfg, nil
}

// Profile returns the named profile. An empty name selects the default
// profile, and an empty profile when there is none.
func (c *Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" {
		return Profile{}, nil
	}
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile not found: %s", name)
	}
	return p, nil
}

// ClientOptions converts the profile into client options.
func (p Profile) ClientOptions() ([]http.ClientOption, error) {
	var opts []http.ClientOption
	for name, value := range p.Options {
		opt, err := http.ParseOption(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, http.WithOption(opt, normalize(value)))
	}
	opts = append(opts, http.WithTLS(p.TLSConfig()))
	return opts, nil
}

// TLSConfig returns the TLS settings with "~" expanded in file paths.
func (p Profile) TLSConfig() http.TLSConfig {
	return http.TLSConfig{
		Enabled:     p.TLS.Enabled,
		CAFile:      ExpandHome(p.TLS.CA),
		KeyFile:     ExpandHome(p.TLS.Key),
		CertFile:    ExpandHome(p.TLS.Cert),
		KeyPassword: p.TLS.Password,
	}
}

var variable = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Expand replaces {{name}} references with profile variables. Unknown
// names are left as they are.
func (p Profile) Expand(s string) string {
	return variable.ReplaceAllStringFunc(s, func(m string) string {
		name := variable.FindStringSubmatch(m)[1]
		if v, ok := p.Variables[name]; ok {
			return v
		}
		return m
	})
}

// ResolveURL expands variables in target and joins it to BaseURL when it
// has no scheme.
func (p Profile) ResolveURL(target string) string {
	target = p.Expand(target)
	if p.BaseURL == "" || strings.Contains(target, "://") {
		return target
	}
	return strings.TrimRight(p.Expand(p.BaseURL), "/") + "/" + strings.TrimLeft(target, "/")
}

// ResolveHeaders returns the profile headers followed by extra, with
// variables expanded.
func (p Profile) ResolveHeaders(extra []string) []string {
	headers := make([]string, 0, len(p.Headers)+len(extra))
	for _, h := range p.Headers {
		headers = append(headers, p.Expand(h))
	}
	for _, h := range extra {
		headers = append(headers, p.Expand(h))
	}
	return headers
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(h, path[2:])
}

// normalize turns decoder-specific numbers into plain ints where they are
// whole.
func normalize(value any) any {
	switch v := value.(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	case int64:
		return int(v)
	}
	return value
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
