package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/dmn/feel"
)

var exprFlags struct {
	context string
	json    bool
}

var exprCmd = &cobra.Command{
	Use:   "expr EXPRESSION",
	Short: "Evaluate a FEEL expression",
	Long: `Evaluate a single expression, optionally against a context given as an
inline JSON or YAML record.

Examples:
  dmn expr 'date("2024-01-31") + duration("P1M")'
  dmn expr 'if score >= 50 then "pass" else "fail"' --context '{"score": 72}'`,
	Args: cobra.ExactArgs(1),
	RunE: runExpr,
}

func init() {
	rootCmd.AddCommand(exprCmd)

	exprCmd.Flags().StringVar(&exprFlags.context, "context", "", "context as an inline JSON or YAML record")
	exprCmd.Flags().BoolVar(&exprFlags.json, "json", false, "print the result as JSON")
}

func runExpr(cmd *cobra.Command, args []string) error {
	interp, err := newInterpreter()
	if err != nil {
		return err
	}

	env := feel.NewEnv(nil)
	if exprFlags.context != "" {
		data, err := parseData(exprFlags.context)
		if err != nil {
			return fmt.Errorf("failed to parse context: %w", err)
		}
		v, err := feel.FromGo(data)
		if err != nil {
			return fmt.Errorf("invalid context: %w", err)
		}
		if c, ok := v.(*feel.Context); ok {
			env = feel.EnvFromContext(c)
		}
	}

	v, err := interp.EvaluateExpression(args[0], env)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exprFlags.json {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	}
	fmt.Fprintln(out, v.String())
	return nil
}
