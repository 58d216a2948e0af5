// Command dmn evaluates decision models from the command line.
//
// Usage:
//
//	# Evaluate one decision of a model file
//	dmn eval models/discount.yaml --decision price --facts '{"order": {"total": 120}}'
//
//	# Evaluate every decision with facts read from a file
//	dmn eval models/discount.yaml --facts-file facts.yaml
//
//	# Check model files and directories
//	dmn validate models/
//
//	# Evaluate a standalone expression
//	dmn expr 'sum([1, 2, 3]) * rate' --context '{"rate": 2}'
package main

func main() {
	Execute()
}
