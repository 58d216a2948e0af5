package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/internal/logger"
	"github.com/liamcoop/dmn/multitenantengine"
)

var (
	// Global flags
	logLevel      string
	functionsFile string
)

var rootCmd = &cobra.Command{
	Use:   "dmn",
	Short: "Evaluate DMN decision models and FEEL expressions",
	Long: `dmn loads decision models written as YAML or JSON and evaluates their
decision tables and literal expressions against facts given on the command
line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := logger.OptionsFromEnv("dmn")
		opts.Output = os.Stderr
		if logLevel != "" {
			lvl, err := logger.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			opts.Level = lvl
		}
		return logger.Setup(opts)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&functionsFile, "functions", "", "YAML file mapping function names to definitions")
}

// newInterpreter builds an interpreter with the built-ins plus the
// functions from --functions
func newInterpreter() (*feel.Interpreter, error) {
	reg := feel.NewRegistry()
	if functionsFile == "" {
		return feel.NewInterpreter(feel.WithRegistry(reg), feel.WithLogger(logger.Logger)), nil
	}

	data, err := os.ReadFile(functionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read functions: %w", err)
	}
	var fns multitenantengine.Functions
	if err := yaml.Unmarshal(data, &fns); err != nil {
		return nil, fmt.Errorf("failed to parse functions %q: %w", functionsFile, err)
	}
	if err := multitenantengine.ValidateFunctions(fns); err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(fns) {
		if err := reg.RegisterExpression(name, fns[name]); err != nil {
			return nil, err
		}
	}
	return feel.NewInterpreter(feel.WithRegistry(reg), feel.WithLogger(logger.Logger)), nil
}

// parseData decodes an inline JSON or YAML document into a record
func parseData(src string) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal([]byte(src), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func sortedKeys(fns multitenantengine.Functions) []string {
	keys := make([]string, 0, len(fns))
	for k := range fns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
