package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/internal/logger"
	"github.com/liamcoop/dmn/modelfile"
	"github.com/liamcoop/dmn/rules"
)

var evalFlags struct {
	decision  string
	facts     string
	factsFile string
	format    string
}

var evalCmd = &cobra.Command{
	Use:   "eval MODEL_FILE",
	Short: "Evaluate decisions of a model file",
	Long: `Evaluate one decision, or every decision, of a model file against facts.

Facts are a JSON or YAML record given inline with --facts or read from
--facts-file. Required decisions are evaluated first and each decision sees
their results under their names.

Examples:
  # Evaluate the price decision
  dmn eval discount.yaml -d price --facts '{"customer": {"tier": "gold"}, "order": {"total": 120}}'

  # Evaluate all decisions and print plain text
  dmn eval discount.yaml --facts-file facts.yaml --format text`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVarP(&evalFlags.decision, "decision", "d", "", "decision to evaluate (default: all)")
	evalCmd.Flags().StringVar(&evalFlags.facts, "facts", "", "facts as an inline JSON or YAML record")
	evalCmd.Flags().StringVarP(&evalFlags.factsFile, "facts-file", "f", "", "file holding the facts")
	evalCmd.Flags().StringVar(&evalFlags.format, "format", "json", "output format: json, text")
}

type evalOutput struct {
	Decision string     `json:"decision"`
	Output   feel.Value `json:"output"`
	Error    string     `json:"error,omitempty"`
}

func runEval(cmd *cobra.Command, args []string) error {
	model, err := modelfile.LoadFile(args[0])
	if err != nil {
		return err
	}
	facts, err := readFacts()
	if err != nil {
		return err
	}
	interp, err := newInterpreter()
	if err != nil {
		return err
	}

	engine, err := rules.NewEngine(rules.NewInMemoryModelStore(),
		rules.WithInterpreter(interp),
		rules.WithEngineLogger(logger.Logger),
	)
	if err != nil {
		return err
	}
	if err := engine.AddModel(model); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var results []*rules.EvaluationResult
	if evalFlags.decision != "" {
		res, err := engine.Evaluate(ctx, model.ID, evalFlags.decision, facts)
		if res == nil {
			return err
		}
		results = []*rules.EvaluationResult{res}
	} else {
		results, err = engine.EvaluateAll(ctx, model.ID, facts)
		if err != nil {
			return err
		}
	}

	failed := 0
	outputs := make([]evalOutput, 0, len(results))
	for _, res := range results {
		o := evalOutput{Decision: res.Decision, Output: res.Output}
		if res.Error != nil {
			o.Error = res.Error.Error()
			failed++
		}
		outputs = append(outputs, o)
	}

	if err := writeEvalOutput(cmd.OutOrStdout(), outputs, evalFlags.format); err != nil {
		return err
	}
	if failed == 1 && len(results) == 1 {
		return results[0].Error
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d decisions failed", failed, len(results))
	}
	return nil
}

func readFacts() (map[string]any, error) {
	switch {
	case evalFlags.facts != "" && evalFlags.factsFile != "":
		return nil, fmt.Errorf("use either --facts or --facts-file, not both")
	case evalFlags.factsFile != "":
		data, err := os.ReadFile(evalFlags.factsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read facts: %w", err)
		}
		facts, err := parseData(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse facts file %q: %w", evalFlags.factsFile, err)
		}
		return facts, nil
	case evalFlags.facts != "":
		facts, err := parseData(evalFlags.facts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse facts: %w", err)
		}
		return facts, nil
	}
	return map[string]any{}, nil
}

func writeEvalOutput(w io.Writer, outputs []evalOutput, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outputs)
	case "text":
		for _, o := range outputs {
			if o.Error != "" {
				fmt.Fprintf(w, "%s: error: %s\n", o.Decision, o.Error)
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", o.Decision, o.Output)
		}
		return nil
	}
	return fmt.Errorf("unknown format %q (use json or text)", format)
}
