package ai

import (
	"context"

	"github.com/sirupsen/logrus"

	"bias-audit/backend/internal/scoring"
)

type analyzerChain struct {
	primary  Analyzer
	fallback Analyzer
}

// WithFallback returns an analyzer that first tries the primary implementation and
// falls back to the provided analyzer when the primary is unavailable or fails.
func WithFallback(primary, fallback Analyzer) Analyzer {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &analyzerChain{primary: primary, fallback: fallback}
}

func (c *analyzerChain) Enabled() bool {
	if c == nil {
		return false
	}
	if c.primary != nil && c.primary.Enabled() {
		return true
	}
	return c.fallback != nil && c.fallback.Enabled()
}

func (c *analyzerChain) Analyze(ctx context.Context, text string, sensitivity int) (scoring.Report, error) {
	if c == nil {
		return scoring.Report{}, ErrDisabled
	}
	if c.primary != nil && c.primary.Enabled() {
		report, err := c.primary.Analyze(ctx, text, sensitivity)
		if err == nil {
			return report, nil
		}
		if ctx.Err() != nil {
			return scoring.Report{}, ctx.Err()
		}
		logrus.WithError(err).Warn("primary analyzer failed; falling back")
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return c.fallback.Analyze(ctx, text, sensitivity)
	}
	return scoring.Report{}, ErrDisabled
}
