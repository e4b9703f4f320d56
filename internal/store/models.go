package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bias-audit/backend/internal/scoring"
)

// ErrInvalid marks a decision rejected before it reaches storage.
var ErrInvalid = errors.New("invalid decision")

// EvidencePerFinding caps how many matched phrases are kept per finding.
const EvidencePerFinding = 3

// BiasSummary is the persisted digest of one finding.
type BiasSummary struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Confidence string  `json:"confidence"`
	Score      float64 `json:"score"`
}

// DecisionRecord is one finalized decision. Rows are append-only.
type DecisionRecord struct {
	ID                uint      `gorm:"primaryKey"`
	PublicID          string    `gorm:"size:36;uniqueIndex"`
	RecordedAt        time.Time `gorm:"index"`
	Text              string    `gorm:"type:text"`
	OptionsJSON       string    `gorm:"type:text"`
	Importance        int
	PreConfidence     int
	Sensitivity       int
	Backend           string `gorm:"size:16"`
	BiasesJSON        string `gorm:"type:text"`
	EvidenceJSON      string `gorm:"type:text"`
	InterventionsJSON string `gorm:"type:text"`
	FollowUps         string `gorm:"type:text"`
	Delay             bool
	PostConfidence    int
	ChangeReason      string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name.
func (DecisionRecord) TableName() string {
	return "decisions"
}

// Validate checks the user-supplied fields.
func (r *DecisionRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: decision is nil", ErrInvalid)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalid)
	}
	for name, v := range map[string]int{
		"importance":      r.Importance,
		"pre_confidence":  r.PreConfidence,
		"post_confidence": r.PostConfidence,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s must be within 0-100, got %d", ErrInvalid, name, v)
		}
	}
	return nil
}

// SetFindings stores the bias summary and the previewed evidence of each finding.
func (r *DecisionRecord) SetFindings(findings []scoring.Finding) {
	summary := make([]BiasSummary, 0, len(findings))
	evidence := make([]string, 0, len(findings)*EvidencePerFinding)
	for _, f := range findings {
		summary = append(summary, BiasSummary{
			Type:       f.Type,
			Label:      f.Label,
			Confidence: f.Confidence,
			Score:      f.Score,
		})
		evidence = append(evidence, f.EvidencePreview(EvidencePerFinding)...)
	}
	r.BiasesJSON = encodeJSON(summary)
	r.EvidenceJSON = encodeJSON(evidence)
}

// Biases returns the decoded bias summary.
func (r *DecisionRecord) Biases() []BiasSummary {
	var out []BiasSummary
	decodeJSON(r.BiasesJSON, &out)
	return out
}

// HasLabel reports whether any stored finding carries label or type.
func (r *DecisionRecord) HasLabel(label string) bool {
	for _, b := range r.Biases() {
		if b.Label == label || b.Type == label {
			return true
		}
	}
	return false
}

// Evidence returns the decoded evidence phrases.
func (r *DecisionRecord) Evidence() []string {
	var out []string
	decodeJSON(r.EvidenceJSON, &out)
	return out
}

// SetOptions stores the chosen options.
func (r *DecisionRecord) SetOptions(options []string) {
	r.OptionsJSON = encodeJSON(nonNil(options))
}

// Options returns the chosen options.
func (r *DecisionRecord) Options() []string {
	var out []string
	decodeJSON(r.OptionsJSON, &out)
	return out
}

// SetInterventions stores the interventions the user committed to.
func (r *DecisionRecord) SetInterventions(items []string) {
	r.InterventionsJSON = encodeJSON(nonNil(items))
}

// Interventions returns the chosen interventions.
func (r *DecisionRecord) Interventions() []string {
	var out []string
	decodeJSON(r.InterventionsJSON, &out)
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func encodeJSON(v any) string {
	payload, _ := json.Marshal(v)
	return string(payload)
}

func decodeJSON(raw string, out any) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), out)
}
