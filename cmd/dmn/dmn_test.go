package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// testCmd returns a command whose output is captured in buf
func testCmd(buf *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	return cmd
}

func resetFlags() {
	functionsFile = ""
	evalFlags.decision = ""
	evalFlags.facts = ""
	evalFlags.factsFile = ""
	evalFlags.format = "json"
	exprFlags.context = ""
	exprFlags.json = false
}

// TestRunEval verifies decision evaluation with inline and file facts
func TestRunEval(t *testing.T) {
	tests := []struct {
		name      string
		decision  string
		facts     string
		factsFile string
		want      map[string]string
	}{
		{
			name:     "single decision",
			decision: "price",
			facts:    `{"customer": {"tier": "gold"}, "order": {"total": 200}}`,
			want:     map[string]string{"price": "170"},
		},
		{
			name:  "yaml facts",
			facts: "customer: {tier: silver}\norder: {total: 150}",
			want:  map[string]string{"discount": `{"rate":0.05}`, "price": "142.5"},
		},
		{
			name:      "facts file",
			decision:  "discount",
			factsFile: "testdata/facts.yaml",
			want:      map[string]string{"discount": `{"rate":0.1}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			evalFlags.decision = tt.decision
			evalFlags.facts = tt.facts
			evalFlags.factsFile = tt.factsFile

			var buf bytes.Buffer
			if err := runEval(testCmd(&buf), []string{"testdata/discount.yaml"}); err != nil {
				t.Fatalf("runEval() failed: %v", err)
			}

			var out []struct {
				Decision string          `json:"decision"`
				Output   json.RawMessage `json:"output"`
				Error    string          `json:"error"`
			}
			if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
			}
			if len(out) != len(tt.want) {
				t.Fatalf("expected %d results, got %d", len(tt.want), len(out))
			}
			for _, o := range out {
				var compact bytes.Buffer
				if err := json.Compact(&compact, o.Output); err != nil {
					t.Fatalf("Compact() failed: %v", err)
				}
				if got := compact.String(); got != tt.want[o.Decision] {
					t.Errorf("decision %s: expected %s, got %s", o.Decision, tt.want[o.Decision], got)
				}
			}
		})
	}
}

// TestRunEvalErrors verifies failures are reported as command errors
func TestRunEvalErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		setup   func()
		wantErr string
	}{
		{"missing model file", "testdata/none.yaml", func() {}, "failed to open"},
		{"broken model", "testdata/broken.yaml", func() {}, "decision"},
		{"unknown decision", "testdata/discount.yaml", func() { evalFlags.decision = "ghost" }, "ghost"},
		{"both facts flags", "testdata/discount.yaml", func() {
			evalFlags.facts = "{}"
			evalFlags.factsFile = "testdata/facts.yaml"
		}, "not both"},
		{"bad facts", "testdata/discount.yaml", func() { evalFlags.facts = "[1, 2" }, "failed to parse facts"},
		{"bad format", "testdata/discount.yaml", func() { evalFlags.format = "xml" }, "unknown format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			tt.setup()
			var buf bytes.Buffer
			err := runEval(testCmd(&buf), []string{tt.model})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestRunEvalTextFormat verifies the plain text output
func TestRunEvalTextFormat(t *testing.T) {
	resetFlags()
	evalFlags.decision = "price"
	evalFlags.format = "text"
	evalFlags.facts = `{"customer": {"tier": "bronze"}, "order": {"total": 40}}`

	var buf bytes.Buffer
	if err := runEval(testCmd(&buf), []string{"testdata/discount.yaml"}); err != nil {
		t.Fatalf("runEval() failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "price: 40" {
		t.Errorf("expected %q, got %q", "price: 40", got)
	}
}

// TestRunEvalWithFunctions verifies --functions makes multi-word functions
// available to models
func TestRunEvalWithFunctions(t *testing.T) {
	resetFlags()
	evalFlags.facts = `{"gross": 50}`
	evalFlags.format = "text"

	var buf bytes.Buffer
	if err := runEval(testCmd(&buf), []string{"testdata/pricing.yaml"}); err == nil {
		t.Fatal("expected the model to fail without its functions")
	}

	functionsFile = "testdata/functions.yaml"
	buf.Reset()
	if err := runEval(testCmd(&buf), []string{"testdata/pricing.yaml"}); err != nil {
		t.Fatalf("runEval() failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "net: 40" {
		t.Errorf("expected %q, got %q", "net: 40", got)
	}
}

// TestRunValidate verifies valid and invalid model files are reported
func TestRunValidate(t *testing.T) {
	tests := []struct {
		name     string
		paths    []string
		wantErr  bool
		wantLine string
	}{
		{"valid file", []string{"testdata/discount.yaml"}, false, "ok   testdata/discount.yaml (model discount, 2 decisions)"},
		{"syntax error", []string{"testdata/broken.yaml"}, true, "FAIL testdata/broken.yaml (model broken)"},
		{"cycle", []string{"testdata/cycle.yaml"}, true, "FAIL testdata/cycle.yaml"},
		{"missing", []string{"testdata/none.yaml"}, true, "FAIL testdata/none.yaml"},
		{"mixed", []string{"testdata/discount.yaml", "testdata/broken.yaml"}, true, "ok   testdata/discount.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			var buf bytes.Buffer
			err := runValidate(testCmd(&buf), tt.paths)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(buf.String(), tt.wantLine) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.wantLine, buf.String())
			}
		})
	}
}

// TestRunValidateDirectory verifies every model in a directory is checked
func TestRunValidateDirectory(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	data, err := os.ReadFile("testdata/discount.yaml")
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), bytes.Replace(data, []byte("id: discount"), []byte("id: "+name[:1]), 1), 0o644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := runValidate(testCmd(&buf), []string{dir}); err != nil {
		t.Fatalf("runValidate() failed: %v\n%s", err, buf.String())
	}
	if n := strings.Count(buf.String(), "ok   "); n != 2 {
		t.Errorf("expected 2 valid models, got %d:\n%s", n, buf.String())
	}
}

// TestRunExpr verifies standalone expression evaluation
func TestRunExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		context string
		asJSON  bool
		want    string
		wantErr bool
	}{
		{name: "arithmetic", expr: "(1 + 2) * 4", want: "12"},
		{name: "string", expr: `"a" + "b"`, want: `"ab"`},
		{name: "context", expr: `if score >= 50 then "pass" else "fail"`, context: `{"score": 72}`, want: `"pass"`},
		{name: "json list", expr: "[1, 2, 3][item > 1]", asJSON: true, want: "[2,3]"},
		{name: "date", expr: `date("2024-01-31") + duration("P1M")`, want: `2024-02-29`},
		{name: "syntax error", expr: "1 +", wantErr: true},
		{name: "bad context", expr: "1", context: "[1, 2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			exprFlags.context = tt.context
			exprFlags.json = tt.asJSON

			var buf bytes.Buffer
			err := runExpr(testCmd(&buf), []string{tt.expr})
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr {
				return
			}
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestParseData verifies JSON and YAML records are accepted
func TestParseData(t *testing.T) {
	for _, src := range []string{`{"a": 1}`, "a: 1", ""} {
		m, err := parseData(src)
		if err != nil {
			t.Errorf("parseData(%q) failed: %v", src, err)
			continue
		}
		if src != "" && m["a"] != 1 {
			t.Errorf("parseData(%q) = %v", src, m)
		}
	}
	if _, err := parseData("- 1\n- 2"); err == nil {
		t.Error("expected an error for a list document")
	}
}
