package scoring

import (
	"math"
	"sort"

	"bias-audit/backend/internal/match"
)

const (
	strongWeight  = 1.0
	softWeight    = 0.5
	emotionWeight = 0.5

	// bandMargin is how far above the threshold a score must reach for band A.
	bandMargin = 0.8
	// affectFloor is the minimum affect score that can ever produce a finding.
	affectFloor = 0.5
	// affectRatio scales the threshold for the affect check.
	affectRatio = 0.6

	// DefaultSensitivity is used when the caller does not choose one.
	DefaultSensitivity = 50
)

// Confidence bands.
const (
	ConfidenceHigh     = "A"
	ConfidenceModerate = "B"
)

// Finding is one detected bias.
type Finding struct {
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Explanation string   `json:"explain"`
	Confidence  string   `json:"confidence"`
	Evidence    []string `json:"evidence"`
	Suggestions []string `json:"suggestions"`
	Score       float64  `json:"score"`
}

// EvidencePreview returns at most n evidence phrases for display.
func (f Finding) EvidencePreview(n int) []string {
	if n <= 0 || len(f.Evidence) <= n {
		return append([]string(nil), f.Evidence...)
	}
	return append([]string(nil), f.Evidence[:n]...)
}

// DebugInfo carries diagnostic values for one analysis call. The zero value marshals as {}.
type DebugInfo struct {
	Threshold float64            `json:"threshold,omitempty"`
	Scores    map[string]float64 `json:"scores,omitempty"`
}

// Empty reports whether the debug info carries no data.
func (d DebugInfo) Empty() bool {
	return d.Threshold == 0 && len(d.Scores) == 0
}

// ClampSensitivity pins s into [0,100].
func ClampSensitivity(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Threshold maps sensitivity 0..100 linearly onto 1.20..0.40.
func Threshold(sensitivity int) float64 {
	s := float64(ClampSensitivity(sensitivity))
	return (120 - s*0.8) / 100
}

// Analyze scores text against the rule store, soft cues and emotion lexicon.
// Empty or whitespace-only text yields an empty finding list and zero DebugInfo.
func Analyze(text string, rules *RuleStore, cues SoftCueSet, emotions EmotionLexicon, sensitivity int) ([]Finding, DebugInfo) {
	text = match.Input(text)
	if text == "" {
		return []Finding{}, DebugInfo{}
	}

	threshold := Threshold(sensitivity)
	findings := make([]Finding, 0)
	scores := make(map[string]float64, rules.Len()+1)

	rules.each(func(rule BiasRule) {
		strong := match.Hits(text, rule.Keywords)
		soft := match.Hits(text, cues[rule.ID])
		score := strongWeight*float64(len(strong)) + softWeight*float64(len(soft))

		if score >= threshold {
			evidence := make([]string, 0, len(strong)+len(soft))
			evidence = append(evidence, strong...)
			evidence = append(evidence, soft...)
			findings = append(findings, Finding{
				Type:        rule.ID,
				Label:       rule.Label,
				Explanation: rule.Explanation,
				Confidence:  band(score, threshold),
				Evidence:    evidence,
				Suggestions: append([]string{}, rule.Interventions...),
				Score:       round2(score),
			})
		}
		scores[rule.Label] = round2(score)
	})

	emotionHits := match.DistinctHits(text, emotions)
	emoScore := emotionWeight * float64(len(emotionHits))
	if emoScore >= math.Max(affectFloor, threshold*affectRatio) {
		findings = append(findings, Finding{
			Type:        AffectType,
			Label:       AffectLabel,
			Explanation: AffectExplanation,
			Confidence:  band(emoScore, threshold),
			Evidence:    append([]string{}, emotionHits...),
			Suggestions: AffectSuggestions(),
			Score:       round2(emoScore),
		})
	}
	scores[AffectLabel] = round2(emoScore)

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Score > findings[j].Score
	})

	return findings, DebugInfo{Threshold: round2(threshold), Scores: scores}
}

func band(score, threshold float64) string {
	if score >= threshold+bandMargin {
		return ConfidenceHigh
	}
	return ConfidenceModerate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
