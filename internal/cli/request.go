package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/naivic/envelope/http"
	"github.com/naivic/envelope/internal/history"
	"github.com/naivic/envelope/internal/output"
	"github.com/naivic/envelope/pkg/jsonschema"
)

// requestFlags are the flags shared by every command that sends a query.
type requestFlags struct {
	params  paramsValue
	data    string
	headers []string
	json    bool
	extract string
	schema  string
	verbose bool
	debug   bool
	store   bool
	timeout time.Duration
}

func (f *requestFlags) register(cmd *cobra.Command) {
	f.registerTransfer(cmd)
	cmd.Flags().StringVarP(&f.extract, "extract", "x", "", "Print only the value at this JSON path")
	cmd.Flags().StringVar(&f.schema, "schema", "", "Validate the decoded response against a JSON schema file")
}

// registerTransfer adds the flags that shape the request itself.
func (f *requestFlags) registerTransfer(cmd *cobra.Command) {
	cmd.Flags().VarP(&f.params, "param", "p", "Parameter name=value (repeatable, kept in order)")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "Raw request body or query string")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "HTTP header \"Name: value\" (repeatable)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Send parameters as JSON (adds Content-Type: application/json)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Show request, timing and response headers")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Show effective options, transfer info and the transfer log")
	cmd.Flags().BoolVar(&f.store, "store", false, "Record the result in the history database")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "Transfer timeout (0 means none)")
}

// request builds the params and header list for a query.
func (f *requestFlags) request(e *env) (http.Params, []string, error) {
	fields := f.params.Fields()
	if f.data != "" && len(fields) > 0 {
		return nil, nil, errors.New("use either --data or --param, not both")
	}

	var params http.Params
	switch {
	case f.data != "":
		params = http.Raw(e.profile.Expand(f.data))
	case len(fields) > 0:
		params = expandFields(e, fields)
	}

	headers := e.profile.ResolveHeaders(f.headers)
	if f.json && !hasHeader(headers, "Content-Type") {
		headers = append(headers, "Content-Type: application/json")
	}
	return params, headers, nil
}

func (f *requestFlags) clientOptions() []http.ClientOption {
	if f.timeout <= 0 {
		return nil
	}
	return []http.ClientOption{http.WithOption(http.OptTimeoutMS, int(f.timeout.Milliseconds()))}
}

func newMethodCmd(method string) *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " URL",
		Short: fmt.Sprintf("Send a %s request to the specified URL", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, method, args[0], f)
		},
	}
	f.register(cmd)
	return cmd
}

func newQueryCmd() *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "query METHOD URL",
		Short: "Send a request with any method",
		Example: `  envelope query GET https://openlibrary.org/search.json -p q="alice in wonderland" -x '$.docs[0].title'
  envelope query POST https://api.restful-api.dev/objects --json -p name=cat -p data[type]=animal`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, strings.ToUpper(args[0]), args[1], f)
		},
	}
	f.register(cmd)
	return cmd
}

func runRequest(cmd *cobra.Command, method, target string, f *requestFlags) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	return execQuery(cmd.Context(), cmd.OutOrStdout(), e, method, target, f)
}

// execQuery sends one query and prints it. It returns an error when the
// query could not be set up, the transfer failed or schema validation did
// not pass.
func execQuery(ctx context.Context, out io.Writer, e *env, method, target string, f *requestFlags) error {
	params, headers, err := f.request(e)
	if err != nil {
		return err
	}
	url := e.profile.ResolveURL(target)

	client, err := e.newClient(f.clientOptions()...)
	if err != nil {
		return err
	}

	formatter := output.GetFormatter(e.format, f.verbose, f.debug, e.noColor)
	if f.verbose && e.format == output.FormatText && f.extract == "" {
		fmt.Fprint(out, formatter.FormatRequest(output.RequestData{
			Method:  method,
			URL:     url,
			Headers: headers,
			Body:    describeParams(params),
		}))
	}

	resp, err := client.Query(ctx, method, url, params, headers)
	if err != nil {
		return err
	}

	if f.store {
		if err := storeProbe(ctx, e, method, url, resp); err != nil {
			e.logger.Warn().Err(err).Msg("could not record probe")
		}
	}

	if f.extract != "" {
		if !resp.OK() {
			return fmt.Errorf("transfer failed: %s", resp.Err)
		}
		value, err := resp.Extract(f.extract)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
	} else {
		printBlock(out, formatter.FormatResponse(resp))
	}

	if f.schema != "" {
		if err := validateSchema(out, e, f.schema, resp); err != nil {
			return err
		}
	}

	if !resp.OK() {
		return fmt.Errorf("transfer failed: %s", resp.Err)
	}
	return nil
}

func validateSchema(out io.Writer, e *env, path string, resp *http.Response) error {
	schema, err := jsonschema.Load(path)
	if err != nil {
		return err
	}
	if resp.Data == nil {
		fmt.Fprintf(out, "%s schema: response is not JSON\n", output.ErrorIcon(e.noColor))
		return errors.New("schema validation failed: response is not JSON")
	}
	if errs := schema.Validate(resp.Data); len(errs) > 0 {
		for _, verr := range errs {
			fmt.Fprintf(out, "%s schema: %v\n", output.ErrorIcon(e.noColor), verr)
		}
		return fmt.Errorf("schema validation failed: %d error(s)", len(errs))
	}
	fmt.Fprintf(out, "%s schema: valid\n", output.SuccessIcon(e.noColor))
	return nil
}

func storeProbe(ctx context.Context, e *env, method, url string, resp *http.Response) error {
	store, err := openHistory(e)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Save(ctx, &history.Probe{
		Method:    method,
		URL:       url,
		HTTPCode:  resp.StatusCode(),
		TotalTime: resp.Info.Seconds(http.InfoTotalTime),
		Err:       resp.Err,
	})
}

func openHistory(e *env) (*history.Store, error) {
	path := e.historyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	return history.Open(path)
}

func expandFields(e *env, fields http.Fields) http.Fields {
	out := make(http.Fields, len(fields))
	for i, field := range fields {
		out[i] = field
		switch v := field.Value.(type) {
		case string:
			out[i].Value = e.profile.Expand(v)
		case http.Fields:
			out[i].Value = expandFields(e, v)
		}
	}
	return out
}

func describeParams(params http.Params) string {
	switch p := params.(type) {
	case http.Raw:
		return string(p)
	case http.Fields:
		return p.Encode()
	}
	return ""
}

func hasHeader(headers []string, name string) bool {
	prefix := strings.ToLower(name) + ":"
	for _, h := range headers {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(h)), prefix) {
			return true
		}
	}
	return false
}

func printBlock(out io.Writer, s string) {
	if s == "" {
		return
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	fmt.Fprint(out, s)
}
