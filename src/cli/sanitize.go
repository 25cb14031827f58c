package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/sanitizer"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

// ErrFindings is returned by check when the input would be rewritten.
var ErrFindings = errors.New("input would be rewritten in safe mode")

func newSanitizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanitize [file]",
		Short: "Sanitize a JSON document",
		Long:  "Read JSON from file (or stdin), apply the safe mode transform and write the result to stdout. Runs whether or not SAFE_MODE is set.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSanitize,
	}
	addLimitFlags(cmd)
	cmd.Flags().Bool("report", false, "write findings to stderr")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "List what safe mode would rewrite",
		Long:  "Read JSON from file (or stdin) and print one line per node safe mode would rewrite. Fails when any exist.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheck,
	}
	addLimitFlags(cmd)
	return cmd
}

func addLimitFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-string-length", sanitizer.DefaultMaxStringLength, "maximum string length in characters")
	cmd.Flags().Int64("max-integer", sanitizer.DefaultMaxInteger, "largest number kept as is")
	cmd.Flags().Int("max-depth", sanitizer.DefaultMaxDepth, "deepest container nesting kept")
	cmd.Flags().String("path", "", "sanitize only the sub-document at this gjson path")
}

func runSanitize(cmd *cobra.Command, args []string) error {
	s, in, err := prepare(cmd, args)
	if err != nil {
		return err
	}

	res, err := s.ProcessJSON(in)
	if err != nil {
		return fmt.Errorf("parsing input: %w", err)
	}
	out, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out); err != nil {
		return err
	}

	if report, _ := cmd.Flags().GetBool("report"); report {
		writeFindings(cmd.ErrOrStderr(), res.Findings)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, in, err := prepare(cmd, args)
	if err != nil {
		return err
	}

	res, err := s.ProcessJSON(in)
	if err != nil {
		return fmt.Errorf("parsing input: %w", err)
	}
	findings := res.Findings
	if len(findings) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	writeFindings(cmd.OutOrStdout(), findings)
	return fmt.Errorf("%d finding(s): %w", len(findings), ErrFindings)
}

// prepare resolves limits (env, then flags) and reads the input document,
// narrowed to --path when given.
func prepare(cmd *cobra.Command, args []string) (*sanitizer.Sanitizer, []byte, error) {
	env, err := loadEnv(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("env: %w", err)
	}

	limits := env.SafeModeDefaults().Limits()
	flags := cmd.Flags()
	if flags.Changed("max-string-length") {
		limits.MaxStringLength, _ = flags.GetInt("max-string-length")
	}
	if flags.Changed("max-integer") {
		limits.MaxInteger, _ = flags.GetInt64("max-integer")
	}
	if flags.Changed("max-depth") {
		limits.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if err := validateLimits(limits); err != nil {
		return nil, nil, err
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	if path, _ := flags.GetString("path"); path != "" {
		if !value.Valid(data) {
			return nil, nil, fmt.Errorf("parsing input: %w", value.ErrInvalidJSON)
		}
		r := gjson.GetBytes(data, path)
		if !r.Exists() {
			return nil, nil, fmt.Errorf("path %q: no match", path)
		}
		data = []byte(r.Raw)
	}
	return sanitizer.New(limits), data, nil
}

// validateLimits rejects values that sanitizer.New would silently replace.
func validateLimits(l sanitizer.Limits) error {
	if l.MaxStringLength < 0 {
		return fmt.Errorf("--max-string-length must be >= 0, got %d", l.MaxStringLength)
	}
	if l.MaxInteger <= 0 {
		return fmt.Errorf("--max-integer must be > 0, got %d", l.MaxInteger)
	}
	if l.MaxDepth < 1 {
		return fmt.Errorf("--max-depth must be >= 1, got %d", l.MaxDepth)
	}
	return nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return data, nil
}

func writeFindings(w io.Writer, findings []sanitizer.Finding) {
	for _, f := range findings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, f.Rule, f.Detail)
	}
}
