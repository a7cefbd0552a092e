package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/naivic/envelope/http"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the configuration and returns every problem found.
func Validate(cfg *Config) []ValidationError {
	var errors []ValidationError

	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
			errors = append(errors, ValidationError{
				Path:    "log_level",
				Message: fmt.Sprintf("invalid log level: %s", cfg.LogLevel),
			})
		}
	}

	if cfg.DefaultProfile != "" {
		if _, ok := cfg.Profiles[cfg.DefaultProfile]; !ok {
			errors = append(errors, ValidationError{
				Path:    "default_profile",
				Message: fmt.Sprintf("profile not found: %s", cfg.DefaultProfile),
			})
		}
	}

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := cfg.Profiles[name]

		if p.BaseURL != "" && !isAbsoluteURL(p.Expand(p.BaseURL)) {
			errors = append(errors, ValidationError{
				Path:    fmt.Sprintf("profiles.%s.base_url", name),
				Message: "base_url must be an absolute http(s) URL",
			})
		}

		for i, h := range p.Headers {
			if !strings.Contains(h, ":") && !strings.HasSuffix(h, ";") {
				errors = append(errors, ValidationError{
					Path:    fmt.Sprintf("profiles.%s.headers[%d]", name, i),
					Message: fmt.Sprintf("header must look like \"Name: value\": %s", h),
				})
			}
		}

		optNames := make([]string, 0, len(p.Options))
		for opt := range p.Options {
			optNames = append(optNames, opt)
		}
		sort.Strings(optNames)
		for _, opt := range optNames {
			if _, err := http.ParseOption(opt); err != nil {
				errors = append(errors, ValidationError{
					Path:    fmt.Sprintf("profiles.%s.options.%s", name, opt),
					Message: err.Error(),
				})
			}
		}

		if p.TLS.Key != "" && p.TLS.Cert == "" {
			errors = append(errors, ValidationError{
				Path:    fmt.Sprintf("profiles.%s.tls.cert", name),
				Message: "cert is required when key is set",
			})
		}
		if p.TLS.Password != "" && p.TLS.Key == "" {
			errors = append(errors, ValidationError{
				Path:    fmt.Sprintf("profiles.%s.tls.password", name),
				Message: "password has no effect without key",
			})
		}
	}

	return errors
}
