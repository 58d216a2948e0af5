package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/liamcoop/dmn/modelfile"
	"github.com/liamcoop/dmn/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate PATH...",
	Short: "Check model files",
	Long: `Load model files and directories and compile every expression in them.

A model passes when it decodes, its decision graph has no unknown
requirements or cycles, its hit policies are known and every expression and
unary test parses.

Examples:
  dmn validate models/
  dmn validate discount.yaml pricing.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	interp, err := newInterpreter()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var result *multierror.Error
	for _, path := range args {
		models, err := loadPath(path)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			result = multierror.Append(result, err)
		}
		for _, m := range models {
			engine, err := rules.NewEngine(rules.NewInMemoryModelStore(), rules.WithInterpreter(interp))
			if err != nil {
				return err
			}
			if err := engine.AddModel(m); err != nil {
				fmt.Fprintf(out, "FAIL %s (model %s): %v\n", path, m.ID, err)
				result = multierror.Append(result, fmt.Errorf("model %s: %w", m.ID, err))
				continue
			}
			fmt.Fprintf(out, "ok   %s (model %s, %d decisions)\n", path, m.ID, len(m.Decisions))
		}
	}
	return result.ErrorOrNil()
}

func loadPath(path string) ([]*rules.DecisionModel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return modelfile.LoadDir(path)
	}
	m, err := modelfile.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*rules.DecisionModel{m}, nil
}
