package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// NewRootCmd builds the envelope command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "envelope",
		Short:   "Query HTTP endpoints and inspect everything about the transfer",
		Version: version,
		Long: `Envelope sends one HTTP request and reports the whole envelope around it:
the body, the decoded JSON, every received header line, the effective transfer
options, timing metadata and the verbose transfer log.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default ~/.envelope/config.yaml)")
	pf.String("profile", "", "Config profile to use")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("ssl", false, "Verify the server certificate and host name")
	pf.String("cacert", "", "CA bundle used to verify the server")
	pf.String("key", "", "Client private key file")
	pf.String("cert", "", "Client certificate file")
	pf.String("pass", "", "Password for an encrypted client key")
	pf.Bool("no-color", false, "Disable colored output")
	pf.StringP("output", "o", "text", "Output format (text, json, yaml)")

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		root.AddCommand(newMethodCmd(method))
	}
	root.AddCommand(newQueryCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newShellCmd())

	return root
}

// Execute runs the command line. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}
