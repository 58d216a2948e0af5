package multitenantengine

import (
	"fmt"
	"strings"
	"testing"
)

// TestValidateFunctions_Valid verifies accepted definitions
func TestValidateFunctions_Valid(t *testing.T) {
	fns := Functions{
		"discounted":      "function(price, rate) price * (1 - rate)",
		"is_adult":        "function(age) age >= 18",
		"risk score of":   "function(x) x * 2",
		"_helper":         "function() 1",
		"SCREAMING_SNAKE": "function(a) a",
	}
	if err := ValidateFunctions(fns); err != nil {
		t.Errorf("expected valid functions, got %v", err)
	}
	if err := ValidateFunctions(nil); err != nil {
		t.Errorf("expected no functions to be valid, got %v", err)
	}
}

// TestValidateFunctions_InvalidNames covers rejected function names
func TestValidateFunctions_InvalidNames(t *testing.T) {
	tests := []struct {
		name    string
		wantErr string
	}{
		{"", "empty"},
		{"123abc", "pattern"},
		{"user-name", "pattern"},
		{"user.name", "pattern"},
		{"two  spaces", "pattern"},
		{" leading", "pattern"},
		{"trailing ", "pattern"},
		{"if", "reserved keyword"},
		{"function", "reserved keyword"},
		{"for each", "reserved keyword"},
		{"sum", "built-in"},
		{"string length", "built-in"},
		{strings.Repeat("a", 101), "exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFunctions(Functions{tt.name: "function(x) x"})
			if err == nil {
				t.Fatalf("expected error for name %q", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestValidateFunctions_InvalidBodies covers rejected definitions
func TestValidateFunctions_InvalidBodies(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty", "", "empty body"},
		{"leading whitespace", " function(x) x", "whitespace"},
		{"trailing newline", "function(x) x\n", "whitespace"},
		{"not a function", "1 + 2", "function literal"},
		{"too long", "function(x) " + strings.Repeat("x + ", 2600) + "x", "maximum allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFunctions(Functions{"f": tt.body})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestValidateFunctions_TooMany verifies the function count limit
func TestValidateFunctions_TooMany(t *testing.T) {
	fns := Functions{}
	for i := 0; i < 101; i++ {
		fns[fmt.Sprintf("fn_%d", i)] = "function(x) x"
	}
	err := ValidateFunctions(fns)
	if err == nil || !strings.Contains(err.Error(), "100") {
		t.Errorf("expected error about max 100 functions, got %v", err)
	}
}

// TestValidateTenantID covers accepted and rejected tenant IDs
func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"acme", false},
		{"acme-corp_2", false},
		{"42", false},
		{"", true},
		{"-acme", true},
		{"acme corp", true},
		{"acme/corp", true},
		{strings.Repeat("a", 101), true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if err := ValidateTenantID(tt.id); (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}
