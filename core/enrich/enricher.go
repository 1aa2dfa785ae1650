package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"wastescan/core/types"
	"wastescan/internal/metrics"
)

const (
	// maxRecommendationLen bounds accepted generated text; anything
	// longer or empty fails validation and falls back
	maxRecommendationLen = 600

	defaultTimeout   = 20 * time.Second
	defaultMaxTokens = 256
	defaultCacheSize = 512
)

// Config configures the enricher
type Config struct {
	// Models is the fallback list, tried in order
	Models []string

	// Timeout bounds each generative call
	Timeout time.Duration

	// MaxTokens bounds the generated recommendation
	MaxTokens int

	// CacheSize bounds the recommendation cache
	CacheSize int
}

// Enricher attaches a short generated critique to each actionable
// finding, with a deterministic fallback to the finding's own reason.
type Enricher struct {
	completer Completer
	models    []string
	timeout   time.Duration
	maxTokens int
	cache     *lru.Cache[string, string]
	log       *zap.Logger
}

// New creates an enricher
func New(completer Completer, cfg Config, log *zap.Logger) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	cache, _ := lru.New[string, string](cfg.CacheSize)
	return &Enricher{
		completer: completer,
		models:    cfg.Models,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		cache:     cache,
		log:       log,
	}
}

// Enrich fills SmartRecommendation on every finding. Healthy findings
// copy their reason without a generative call; actionable findings get
// one bounded call each, falling back to the reason on any failure.
func (e *Enricher) Enrich(ctx context.Context, findings []types.Finding) []types.Finding {
	for i := range findings {
		f := &findings[i]
		if !f.Status.Actionable() || !f.PotentialSavings.IsPositive() {
			f.SmartRecommendation = f.Reason
			f.UsesFallback = false
			continue
		}

		key := cacheKey(f)
		if cached, ok := e.cache.Get(key); ok {
			f.SmartRecommendation = cached
			f.UsesFallback = false
			metrics.Get().EnricherCallsTotal.WithLabelValues("cached").Inc()
			continue
		}

		text, err := e.generate(ctx, f)
		if err != nil {
			e.log.Debug("recommendation fallback",
				zap.String("resource", f.ResourceName), zap.Error(err))
			f.SmartRecommendation = f.Reason
			f.UsesFallback = true
			metrics.Get().EnricherCallsTotal.WithLabelValues("fallback").Inc()
			continue
		}

		f.SmartRecommendation = text
		f.UsesFallback = false
		e.cache.Add(key, text)
		metrics.Get().EnricherCallsTotal.WithLabelValues("generated").Inc()
	}
	return findings
}

// generate tries each model in order until one returns valid text
func (e *Enricher) generate(ctx context.Context, f *types.Finding) (string, error) {
	if e.completer == nil {
		return "", fmt.Errorf("no completer configured")
	}
	prompt := buildPrompt(f)

	var lastErr error
	for _, model := range e.models {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		text, err := e.completer.Complete(callCtx, model, prompt, e.maxTokens)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		text = strings.TrimSpace(text)
		if len(text) == 0 || len(text) > maxRecommendationLen {
			lastErr = fmt.Errorf("generated text length %d out of bounds", len(text))
			continue
		}
		return text, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no generative models configured")
	}
	return "", lastErr
}

func buildPrompt(f *types.Finding) string {
	return fmt.Sprintf(`You are a cloud cost advisor. In two sentences or fewer, tell the user what to do about this finding and why it saves money. Be direct and specific. No preamble.

Resource: %s (%s)
Classification: %s
Estimated monthly waste: %s
Detail: %s`,
		f.ResourceName, f.ResourceType, f.Status, f.PotentialSavings.StringFixed(2), f.Reason)
}

// cacheKey identifies a finding for recommendation reuse. DetectedAt
// and IDs are excluded so repeat scans of unchanged resources hit.
func cacheKey(f *types.Finding) string {
	return strings.Join([]string{
		f.ConnectionID, f.ResourceType, f.ResourceName,
		string(f.Status), f.PotentialSavings.String(),
	}, "|")
}
