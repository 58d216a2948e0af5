package multitenantengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/dmn/feel"
)

const (
	maxFunctions      = 100
	maxNameLength     = 100
	maxFunctionSource = 10000
)

var (
	wordPattern     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

	// names of the standard built-ins, which tenants may not replace
	builtinNames = func() map[string]bool {
		names := map[string]bool{}
		for _, n := range feel.NewRegistry().Names() {
			names[n] = true
		}
		return names
	}()
)

// ValidateTenantID checks a tenant ID is usable in URLs and log fields
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if len(id) > maxNameLength {
		return fmt.Errorf("tenant ID length %d exceeds maximum of %d characters", len(id), maxNameLength)
	}
	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("tenant ID %q must match pattern %s", id, tenantIDPattern)
	}
	return nil
}

// ValidateFunctions checks tenant function definitions before they are
// registered. Bodies are only checked for shape here; RegisterExpression
// parses them.
func ValidateFunctions(fns Functions) error {
	if len(fns) > maxFunctions {
		return fmt.Errorf("%d functions defined, maximum allowed is %d", len(fns), maxFunctions)
	}

	for name, src := range fns {
		if err := validateFunctionName(name); err != nil {
			return fmt.Errorf("invalid function name %q: %w", name, err)
		}
		if src == "" {
			return fmt.Errorf("function %q has an empty body", name)
		}
		if strings.TrimSpace(src) != src {
			return fmt.Errorf("function %q has leading or trailing whitespace", name)
		}
		if len(src) > maxFunctionSource {
			return fmt.Errorf("function %q is %d characters long, maximum allowed is %d", name, len(src), maxFunctionSource)
		}
		if !strings.HasPrefix(src, "function") {
			return fmt.Errorf("function %q must be a function literal such as \"function(a, b) a + b\"", name)
		}
	}
	return nil
}

// validateFunctionName accepts one or more identifier words separated by
// single spaces, like the built-in "string length"
func validateFunctionName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
	words := strings.Split(name, " ")
	for _, w := range words {
		if !wordPattern.MatchString(w) {
			return fmt.Errorf("each word must match pattern %s, separated by single spaces", wordPattern)
		}
	}
	if feel.IsKeyword(words[0]) {
		return fmt.Errorf("cannot start with reserved keyword %q", words[0])
	}
	if builtinNames[name] {
		return fmt.Errorf("cannot replace built-in function %q", name)
	}
	return nil
}
