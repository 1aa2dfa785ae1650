package enrich

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wastescan/core/types"
)

type fakeCompleter struct {
	responses map[string]string
	err       error
	calls     []string
}

func (c *fakeCompleter) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	c.calls = append(c.calls, model)
	if c.err != nil {
		return "", c.err
	}
	if text, ok := c.responses[model]; ok {
		return text, nil
	}
	return "", fmt.Errorf("model %s unavailable", model)
}

func actionableFinding() types.Finding {
	return types.Finding{
		ConnectionID:     "conn_1",
		UserID:           "usr_1",
		ResourceName:     "Inactive repositories",
		ResourceType:     "repository",
		Status:           types.FindingZombie,
		PotentialSavings: decimal.NewFromInt(4),
		Reason:           "3 of 4 repositories have had no pushes in 75 days",
	}
}

func newTestEnricher(c Completer, models ...string) *Enricher {
	if len(models) == 0 {
		models = []string{"model-a"}
	}
	return New(c, Config{Models: models}, zap.NewNop())
}

// TestGeneratedRecommendationAttached verifies the happy path
func TestGeneratedRecommendationAttached(t *testing.T) {
	completer := &fakeCompleter{responses: map[string]string{
		"model-a": "Cancel the plan; nobody has pushed in months.",
	}}
	e := newTestEnricher(completer)

	out := e.Enrich(context.Background(), []types.Finding{actionableFinding()})
	if out[0].SmartRecommendation != "Cancel the plan; nobody has pushed in months." {
		t.Errorf("unexpected recommendation: %q", out[0].SmartRecommendation)
	}
	if out[0].UsesFallback {
		t.Error("generated recommendation marked as fallback")
	}
}

// TestFallbackOnFailure verifies every finding still carries a
// recommendation when generation fails
func TestFallbackOnFailure(t *testing.T) {
	completer := &fakeCompleter{err: fmt.Errorf("upstream down")}
	e := newTestEnricher(completer)

	f := actionableFinding()
	out := e.Enrich(context.Background(), []types.Finding{f})
	if out[0].SmartRecommendation != f.Reason {
		t.Errorf("fallback should copy the reason, got %q", out[0].SmartRecommendation)
	}
	if !out[0].UsesFallback {
		t.Error("fallback not flagged")
	}
}

// TestHealthyFindingsSkipGeneration verifies no generative call is
// spent on findings with nothing to act on
func TestHealthyFindingsSkipGeneration(t *testing.T) {
	completer := &fakeCompleter{}
	e := newTestEnricher(completer)

	healthy := types.Finding{
		Status:           types.FindingActive,
		PotentialSavings: decimal.Zero,
		Reason:           "All repositories show recent push activity",
	}
	out := e.Enrich(context.Background(), []types.Finding{healthy})
	if len(completer.calls) != 0 {
		t.Errorf("healthy finding triggered %d generative calls", len(completer.calls))
	}
	if out[0].SmartRecommendation != healthy.Reason {
		t.Errorf("healthy recommendation should copy the reason")
	}
	if out[0].UsesFallback {
		t.Error("copying the reason for a healthy finding is not a fallback")
	}
}

// TestModelFallbackOrder verifies the second model is tried when the
// first fails, and wins
func TestModelFallbackOrder(t *testing.T) {
	completer := &fakeCompleter{responses: map[string]string{
		"model-b": "Delete the idle volumes.",
	}}
	e := newTestEnricher(completer, "model-a", "model-b")

	out := e.Enrich(context.Background(), []types.Finding{actionableFinding()})
	if len(completer.calls) != 2 || completer.calls[0] != "model-a" || completer.calls[1] != "model-b" {
		t.Errorf("unexpected call order: %v", completer.calls)
	}
	if out[0].SmartRecommendation != "Delete the idle volumes." {
		t.Errorf("unexpected recommendation: %q", out[0].SmartRecommendation)
	}
	if out[0].UsesFallback {
		t.Error("successful second model marked as fallback")
	}
}

// TestOversizedGenerationFallsBack verifies length validation rejects
// runaway output
func TestOversizedGenerationFallsBack(t *testing.T) {
	completer := &fakeCompleter{responses: map[string]string{
		"model-a": strings.Repeat("x", 601),
	}}
	e := newTestEnricher(completer)

	f := actionableFinding()
	out := e.Enrich(context.Background(), []types.Finding{f})
	if !out[0].UsesFallback {
		t.Error("oversized generation not rejected")
	}
	if out[0].SmartRecommendation != f.Reason {
		t.Errorf("expected reason fallback, got %q", out[0].SmartRecommendation)
	}
}

// TestWhitespaceOnlyGenerationFallsBack verifies blank output fails
// validation after trimming
func TestWhitespaceOnlyGenerationFallsBack(t *testing.T) {
	completer := &fakeCompleter{responses: map[string]string{"model-a": "   \n\t  "}}
	e := newTestEnricher(completer)

	out := e.Enrich(context.Background(), []types.Finding{actionableFinding()})
	if !out[0].UsesFallback {
		t.Error("blank generation not rejected")
	}
}

// TestRecommendationCacheHit verifies repeat scans of an unchanged
// finding reuse the cached recommendation
func TestRecommendationCacheHit(t *testing.T) {
	completer := &fakeCompleter{responses: map[string]string{
		"model-a": "Cancel the plan.",
	}}
	e := newTestEnricher(completer)

	e.Enrich(context.Background(), []types.Finding{actionableFinding()})
	out := e.Enrich(context.Background(), []types.Finding{actionableFinding()})
	if len(completer.calls) != 1 {
		t.Errorf("expected 1 generative call total, got %d", len(completer.calls))
	}
	if out[0].SmartRecommendation != "Cancel the plan." {
		t.Errorf("cache returned %q", out[0].SmartRecommendation)
	}
}

// TestNilCompleterDegradesToFallback verifies the enricher works
// without any generative backend configured
func TestNilCompleterDegradesToFallback(t *testing.T) {
	e := newTestEnricher(nil)

	f := actionableFinding()
	out := e.Enrich(context.Background(), []types.Finding{f})
	if !out[0].UsesFallback || out[0].SmartRecommendation != f.Reason {
		t.Errorf("nil completer should fall back to the reason, got %+v", out[0])
	}
}
