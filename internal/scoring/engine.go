package scoring

import "context"

// SourceRules marks reports produced by the keyword engine.
const SourceRules = "rules"

// Report is the result of one analysis, whichever backend produced it.
type Report struct {
	Findings []Finding `json:"findings"`
	Debug    DebugInfo `json:"debug"`
	Source   string    `json:"source"`
	Summary  string    `json:"summary,omitempty"`
}

// Engine bundles the rule catalogue with the cue tables. It holds no mutable
// state after construction and is safe for concurrent use.
type Engine struct {
	rules    *RuleStore
	cues     SoftCueSet
	emotions EmotionLexicon
}

// NewEngine constructs an engine. Nil tables fall back to the built-in defaults.
func NewEngine(rules *RuleStore, cues SoftCueSet, emotions EmotionLexicon) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	if cues == nil {
		cues = DefaultSoftCues()
	}
	if emotions == nil {
		emotions = DefaultEmotionLexicon()
	}
	return &Engine{rules: rules, cues: cues, emotions: emotions}
}

// NewEngineFromFile builds an engine around the cached rule file at path.
func NewEngineFromFile(path string) *Engine {
	return NewEngine(CachedRules(path), nil, nil)
}

// Rules exposes the engine's rule catalogue.
func (e *Engine) Rules() *RuleStore {
	return e.rules
}

// Run scores text at the given sensitivity.
func (e *Engine) Run(text string, sensitivity int) Report {
	findings, debug := Analyze(text, e.rules, e.cues, e.emotions, sensitivity)
	return Report{Findings: findings, Debug: debug, Source: SourceRules}
}

// Enabled is always true; the engine has no external dependency.
func (e *Engine) Enabled() bool {
	return e != nil
}

// Analyze satisfies the same contract as remote analyzers. It never fails.
func (e *Engine) Analyze(_ context.Context, text string, sensitivity int) (Report, error) {
	return e.Run(text, sensitivity), nil
}
