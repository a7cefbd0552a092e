package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/naivic/envelope/http"
	"github.com/naivic/envelope/internal/config"
	"github.com/naivic/envelope/internal/logging"
	"github.com/naivic/envelope/internal/output"
)

// env is the configuration resolved for one command invocation: config
// file, profile and persistent flags, in increasing precedence.
type env struct {
	cfg     *config.Config
	profile config.Profile
	logger  zerolog.Logger
	format  output.OutputFormat
	noColor bool
	tls     http.TLSConfig
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	flags := cmd.Flags()

	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgPath, _ := flags.GetString("config")
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	profileName, _ := flags.GetString("profile")
	profile, err := cfg.Profile(profileName)
	if err != nil {
		return nil, err
	}

	forceNoColor, _ := flags.GetBool("no-color")
	noColor := true
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		noColor = output.NoColor(f, forceNoColor)
	}

	level := cfg.LogLevel
	if changed["log-level"] {
		level, _ = flags.GetString("log-level")
	}
	logger, err := logging.New(cmd.ErrOrStderr(), level, noColor)
	if err != nil {
		return nil, err
	}

	formatName, _ := flags.GetString("output")
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	tls := profile.TLSConfig()
	if changed["ssl"] {
		tls.Enabled, _ = flags.GetBool("ssl")
	}
	if changed["cacert"] {
		v, _ := flags.GetString("cacert")
		tls.CAFile = config.ExpandHome(v)
	}
	if changed["key"] {
		v, _ := flags.GetString("key")
		tls.KeyFile = config.ExpandHome(v)
	}
	if changed["cert"] {
		v, _ := flags.GetString("cert")
		tls.CertFile = config.ExpandHome(v)
	}
	if changed["pass"] {
		tls.KeyPassword, _ = flags.GetString("pass")
	}

	logger.Debug().
		Str("config", cfgPath).
		Str("profile", profileName).
		Str("format", string(format)).
		Bool("tls", tls.Enabled).
		Msg("environment loaded")

	return &env{
		cfg:     cfg,
		profile: profile,
		logger:  logger,
		format:  format,
		noColor: noColor,
		tls:     tls,
	}, nil
}

// newClient builds a client from the profile, with extra options applied
// last.
func (e *env) newClient(extra ...http.ClientOption) (*http.Client, error) {
	opts, err := e.profile.ClientOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, http.WithTLS(e.tls), http.WithLogger(e.logger))
	opts = append(opts, extra...)
	return http.NewClient(opts...), nil
}

// historyPath returns the history database location.
func (e *env) historyPath() string {
	if e.cfg.History != "" {
		return config.ExpandHome(e.cfg.History)
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".envelope", "history.db")
	}
	return "history.db"
}
