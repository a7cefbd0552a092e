package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const shellHelp = `Enter METHOD URL [name=value ...], for example:
  GET https://openlibrary.org/search.json q="alice in wonderland"
  POST https://api.restful-api.dev/objects name=cat data[type]=animal
Commands: json on|off, verbose on|off, debug on|off, help, exit`

// lineReader is the part of *readline.Instance the shell uses.
type lineReader interface {
	Readline() (string, error)
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Send queries interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			rlCfg := &readline.Config{
				Prompt:          "envelope> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			}
			if h, err := os.UserHomeDir(); err == nil {
				rlCfg.HistoryFile = filepath.Join(h, ".envelope", "shell_history")
			}

			rl, err := readline.NewEx(rlCfg)
			if err != nil {
				return fmt.Errorf("shell: %w", err)
			}
			defer rl.Close()

			return runShell(cmd.Context(), rl, cmd.OutOrStdout(), e)
		},
	}
}

// runShell reads lines until EOF or exit. Query failures are printed and
// do not end the session.
func runShell(ctx context.Context, rl lineReader, out io.Writer, e *env) error {
	state := &requestFlags{}

	fmt.Fprintln(out, shellHelp)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		words, err := splitWords(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}

		switch strings.ToLower(words[0]) {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(out, shellHelp)
			continue
		case "json", "verbose", "debug":
			if err := toggle(state, words); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}

		if len(words) < 2 {
			fmt.Fprintln(out, "error: expected METHOD URL [name=value ...]")
			continue
		}

		f := &requestFlags{json: state.json, verbose: state.verbose, debug: state.debug}
		for _, w := range words[2:] {
			if err := f.params.Set(w); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				f = nil
				break
			}
		}
		if f == nil {
			continue
		}

		if err := execQuery(ctx, out, e, strings.ToUpper(words[0]), words[1], f); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func toggle(state *requestFlags, words []string) error {
	if len(words) != 2 || (words[1] != "on" && words[1] != "off") {
		return fmt.Errorf("usage: %s on|off", words[0])
	}
	on := words[1] == "on"
	switch strings.ToLower(words[0]) {
	case "json":
		state.json = on
	case "verbose":
		state.verbose = on
	case "debug":
		state.debug = on
	}
	return nil
}

// splitWords splits a line on whitespace, honoring single and double
// quotes.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		quote   rune
		inWord  bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}
