package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/liamcoop/dmn/internal/logger"
	"github.com/liamcoop/dmn/rules"
)

// TestCollector_ObserveDecision tests outcome labels and histogram samples
func TestCollector_ObserveDecision(t *testing.T) {
	c := NewCollector(Config{Namespace: "test"}, prometheus.NewRegistry())

	c.ObserveDecision("m1", "risk", 2*time.Millisecond, nil)
	c.ObserveDecision("m1", "risk", time.Millisecond, nil)
	c.ObserveDecision("m1", "risk", time.Millisecond, errors.New("boom"))
	c.ObserveDecision("m1", "risk", time.Millisecond, &rules.HitPolicyViolation{Decision: "risk", Policy: rules.HitPolicyUnique, Matches: 2})

	tests := []struct {
		status string
		want   float64
	}{
		{"success", 2},
		{"error", 1},
		{"violation", 1},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := testutil.ToFloat64(c.evaluations.WithLabelValues("m1", "risk", tt.status))
			if got != tt.want {
				t.Errorf("expected %v evaluations, got %v", tt.want, got)
			}
		})
	}

	if n := testutil.CollectAndCount(c.duration); n != 1 {
		t.Errorf("expected 1 duration series, got %d", n)
	}
}

// TestCollector_ObserveHitPolicyViolation tests the violation counter
func TestCollector_ObserveHitPolicyViolation(t *testing.T) {
	c := NewCollector(Config{}, nil)
	c.ObserveHitPolicyViolation("m1", "risk", rules.HitPolicyAny)

	got := testutil.ToFloat64(c.violations.WithLabelValues("m1", "risk", "ANY"))
	if got != 1 {
		t.Errorf("expected 1 violation, got %v", got)
	}
}

// TestCollector_ObserveCache tests hit and miss counting
func TestCollector_ObserveCache(t *testing.T) {
	c := NewCollector(Config{}, nil)
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveCache(false)

	if got := testutil.ToFloat64(c.cacheLookup.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheLookup.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

// TestCollector_Nil tests that a nil collector is safe to use
func TestCollector_Nil(t *testing.T) {
	var c *Collector
	c.ObserveDecision("m", "d", time.Second, nil)
	c.ObserveHitPolicyViolation("m", "d", rules.HitPolicyUnique)
	c.ObserveCache(true)
	c.ObserveRecord(nil)
	if c.InterpreterOption() != nil {
		t.Error("expected nil interpreter option from nil collector")
	}
}

// TestCollector_LogCounters tests that logger and HTTP status counters are
// exported
func TestCollector_LogCounters(t *testing.T) {
	c := NewCollector(Config{}, prometheus.NewRegistry())
	errorsBefore := testutil.ToFloat64(c.logErrors)
	warningsBefore := testutil.ToFloat64(c.logWarnings)
	notFoundBefore := testutil.ToFloat64(c.http404)
	serverBefore := testutil.ToFloat64(c.http5xx)

	logger.CountHTTPStatus(404)
	logger.CountHTTPStatus(503)

	if got := testutil.ToFloat64(c.http404) - notFoundBefore; got != 1 {
		t.Errorf("expected one 404 response, got %v", got)
	}
	if got := testutil.ToFloat64(c.http5xx) - serverBefore; got != 1 {
		t.Errorf("expected one 5xx response, got %v", got)
	}
	if got := testutil.ToFloat64(c.logWarnings) - warningsBefore; got != 1 {
		t.Errorf("expected the 404 to count as a warning, got %v", got)
	}
	if got := testutil.ToFloat64(c.logErrors) - errorsBefore; got != 1 {
		t.Errorf("expected the 503 to count as an error, got %v", got)
	}
}
