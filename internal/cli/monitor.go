package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naivic/envelope/internal/history"
	"github.com/naivic/envelope/internal/monitor"
	"github.com/naivic/envelope/internal/output"
)

func newMonitorCmd() *cobra.Command {
	f := &requestFlags{}
	var (
		method string
		count  int
		rate   float64
	)

	cmd := &cobra.Command{
		Use:   "monitor URL",
		Short: "Probe a URL repeatedly and report latency percentiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			params, headers, err := f.request(e)
			if err != nil {
				return err
			}
			client, err := e.newClient(f.clientOptions()...)
			if err != nil {
				return err
			}

			var rec monitor.Recorder
			if f.store {
				store, err := openHistory(e)
				if err != nil {
					return err
				}
				defer store.Close()
				rec = store
			}

			out := cmd.OutOrStdout()
			formatter := output.GetFormatter(e.format, f.verbose, f.debug, e.noColor)
			cfg := monitor.Config{
				Method:  strings.ToUpper(method),
				URL:     e.profile.ResolveURL(args[0]),
				Params:  params,
				Headers: headers,
				Count:   count,
				Rate:    rate,
			}
			if e.format == output.FormatText {
				cfg.OnProbe = func(p history.Probe) {
					fmt.Fprint(out, formatter.FormatProbes([]history.Probe{p}))
				}
			}

			e.logger.Info().Str("url", cfg.URL).Int("count", count).Float64("rate", rate).Msg("monitor started")

			summary, err := monitor.Run(cmd.Context(), cfg, client, rec)
			printBlock(out, formatter.FormatSummary(summary))
			return err
		},
	}

	f.registerTransfer(cmd)
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of probes")
	cmd.Flags().Float64Var(&rate, "rate", 1, "Maximum probes per second (0 for no limit)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [URL]",
		Short: "List recorded probes, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			url := ""
			if len(args) == 1 {
				url = e.profile.ResolveURL(args[0])
			}

			store, err := openHistory(e)
			if err != nil {
				return err
			}
			defer store.Close()

			probes, err := store.List(cmd.Context(), url, limit)
			if err != nil {
				return err
			}

			formatter := output.GetFormatter(e.format, false, false, e.noColor)
			printBlock(cmd.OutOrStdout(), formatter.FormatProbes(probes))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "Maximum number of probes to list")
	return cmd
}
