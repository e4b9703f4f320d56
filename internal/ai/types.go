package ai

import (
	"context"
	"errors"

	"bias-audit/backend/internal/scoring"
)

// SourceAI marks reports produced by the language-model backend.
const SourceAI = "ai"

// ErrDisabled is returned when the analyzer has no credentials.
var ErrDisabled = errors.New("ai analyzer disabled")

// Analyzer turns decision text into a scored report. The keyword engine and
// the language-model client both satisfy it.
type Analyzer interface {
	Enabled() bool
	Analyze(ctx context.Context, text string, sensitivity int) (scoring.Report, error)
}

var _ Analyzer = (*scoring.Engine)(nil)

// Assessment is the JSON object the model is asked to return.
type Assessment struct {
	Summary string         `json:"summary"`
	Biases  []AssessedBias `json:"biases"`
	Tips    []string       `json:"tips"`
}

// AssessedBias is one bias named by the model.
type AssessedBias struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
