package config

import (
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantPaths []string
	}{
		{
			name:      "Empty config",
			cfg:       &Config{},
			wantPaths: nil,
		},
		{
			name: "Valid profile",
			cfg: &Config{
				DefaultProfile: "a",
				LogLevel:       "INFO",
				Profiles: map[string]Profile{
					"a": {
						BaseURL: "https://a.test",
						Headers: []string{"Accept: application/json", "X-Empty;"},
						Options: map[string]any{"MAXREDIRS": 3},
						TLS:     TLS{Key: "k", Cert: "c", Password: "p"},
					},
				},
			},
			wantPaths: nil,
		},
		{
			name:      "Bad log level",
			cfg:       &Config{LogLevel: "loud"},
			wantPaths: []string{"log_level"},
		},
		{
			name:      "Missing default profile",
			cfg:       &Config{DefaultProfile: "nope"},
			wantPaths: []string{"default_profile"},
		},
		{
			name: "Profile problems",
			cfg: &Config{
				Profiles: map[string]Profile{
					"b": {
						BaseURL: "api.test",
						Headers: []string{"garbage"},
						Options: map[string]any{"NOPE": 1},
						TLS:     TLS{Key: "k"},
					},
					"c": {
						TLS: TLS{Password: "p"},
					},
				},
			},
			wantPaths: []string{
				"profiles.b.base_url",
				"profiles.b.headers[0]",
				"profiles.b.options.NOPE",
				"profiles.b.tls.cert",
				"profiles.c.tls.password",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.cfg)

			if len(errs) != len(tt.wantPaths) {
				t.Fatalf("Expected %d errors, got %d: %v", len(tt.wantPaths), len(errs), errs)
			}
			for i, e := range errs {
				if e.Path != tt.wantPaths[i] {
					t.Errorf("Error %d: expected path %s, got %s", i, tt.wantPaths[i], e.Path)
				}
				if e.Error() == "" {
					t.Errorf("Error %d has an empty message", i)
				}
			}
		})
	}
}
