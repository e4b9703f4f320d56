package api

import (
	"fmt"
	"strings"
	"time"

	"bias-audit/backend/internal/scoring"
	"bias-audit/backend/internal/store"
	"bias-audit/backend/internal/wizard"
)

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Text        string `json:"text"`
	Sensitivity *int   `json:"sensitivity"`
}

// AnalyzeResponse returns the findings of one analysis.
type AnalyzeResponse struct {
	Findings    []scoring.Finding `json:"findings"`
	Debug       scoring.DebugInfo `json:"debug"`
	Summary     string            `json:"summary,omitempty"`
	Sensitivity int               `json:"sensitivity"`
	ElapsedMs   int64             `json:"elapsed_ms"`
	Backend     string            `json:"backend"`
}

// ListResponse wraps a plain list.
type ListResponse struct {
	Items []string `json:"items"`
}

// RulesResponse lists the active bias catalogue.
type RulesResponse struct {
	Items []scoring.BiasRule `json:"items"`
	Total int                `json:"total"`
}

// PreviewResponse echoes the selection with its generated text.
type PreviewResponse struct {
	Selection wizard.Selection `json:"selection"`
	Preview   string           `json:"preview"`
}

// DecisionRequest is the body of POST /api/decisions. When Findings is
// omitted the text is analyzed again at Sensitivity.
type DecisionRequest struct {
	Text           string            `json:"text"`
	Options        []string          `json:"options"`
	Importance     int               `json:"importance"`
	PreConfidence  int               `json:"pre_confidence"`
	Sensitivity    *int              `json:"sensitivity"`
	Findings       []scoring.Finding `json:"findings"`
	Interventions  []string          `json:"interventions"`
	FollowUps      string            `json:"follow_ups"`
	Delay          bool              `json:"delay"`
	PostConfidence int               `json:"post_confidence"`
	ChangeReason   string            `json:"change_reason"`
}

// DecisionDTO is the API representation for a stored decision.
type DecisionDTO struct {
	ID             uint                `json:"id"`
	PublicID       string              `json:"public_id"`
	Timestamp      time.Time           `json:"timestamp"`
	Text           string              `json:"text"`
	Options        []string            `json:"options"`
	Importance     int                 `json:"importance"`
	PreConfidence  int                 `json:"pre_confidence"`
	Sensitivity    int                 `json:"sensitivity"`
	Backend        string              `json:"backend"`
	Biases         []store.BiasSummary `json:"biases"`
	Evidence       []string            `json:"evidence"`
	Interventions  []string            `json:"interventions"`
	FollowUps      string              `json:"follow_ups"`
	Delay          bool                `json:"delay"`
	PostConfidence int                 `json:"post_confidence"`
	ChangeReason   string              `json:"change_reason"`
}

// DecisionsResponse holds a page of decisions and the filtered total.
type DecisionsResponse struct {
	Items []DecisionDTO `json:"items"`
	Total int64         `json:"total"`
}

// FromModel converts a store row into its API form.
func FromModel(rec store.DecisionRecord) DecisionDTO {
	return DecisionDTO{
		ID:             rec.ID,
		PublicID:       rec.PublicID,
		Timestamp:      rec.RecordedAt,
		Text:           rec.Text,
		Options:        nonNil(rec.Options()),
		Importance:     rec.Importance,
		PreConfidence:  rec.PreConfidence,
		Sensitivity:    rec.Sensitivity,
		Backend:        rec.Backend,
		Biases:         nonNilBiases(rec.Biases()),
		Evidence:       nonNil(rec.Evidence()),
		Interventions:  nonNil(rec.Interventions()),
		FollowUps:      rec.FollowUps,
		Delay:          rec.Delay,
		PostConfidence: rec.PostConfidence,
		ChangeReason:   rec.ChangeReason,
	}
}

// ToModel builds the record to append from the request and its findings.
func (r DecisionRequest) ToModel(findings []scoring.Finding, sensitivity int, backend string) *store.DecisionRecord {
	rec := &store.DecisionRecord{
		Text:           strings.TrimSpace(r.Text),
		Importance:     r.Importance,
		PreConfidence:  r.PreConfidence,
		Sensitivity:    sensitivity,
		Backend:        backend,
		FollowUps:      strings.TrimSpace(r.FollowUps),
		Delay:          r.Delay,
		PostConfidence: r.PostConfidence,
		ChangeReason:   strings.TrimSpace(r.ChangeReason),
	}
	rec.SetOptions(r.Options)
	rec.SetInterventions(r.Interventions)
	rec.SetFindings(findings)
	return rec
}

// CSVHeader is the column layout of the delimited export.
var CSVHeader = []string{
	"timestamp",
	"public_id",
	"text",
	"options",
	"importance",
	"pre_confidence",
	"biases",
	"evidence",
	"interventions",
	"follow_ups",
	"delay",
	"post_confidence",
	"change_reason",
	"sensitivity",
	"backend",
}

// CSVRow flattens a decision for the delimited export; lists are joined with "|".
func (d DecisionDTO) CSVRow() []string {
	biases := make([]string, 0, len(d.Biases))
	for _, b := range d.Biases {
		biases = append(biases, fmt.Sprintf("%s(%s)", b.Label, b.Confidence))
	}
	return []string{
		d.Timestamp.UTC().Format(time.RFC3339),
		d.PublicID,
		d.Text,
		strings.Join(d.Options, "|"),
		fmt.Sprint(d.Importance),
		fmt.Sprint(d.PreConfidence),
		strings.Join(biases, "|"),
		strings.Join(d.Evidence, "|"),
		strings.Join(d.Interventions, "|"),
		d.FollowUps,
		fmt.Sprint(d.Delay),
		fmt.Sprint(d.PostConfidence),
		d.ChangeReason,
		fmt.Sprint(d.Sensitivity),
		d.Backend,
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func nonNilBiases(items []store.BiasSummary) []store.BiasSummary {
	if items == nil {
		return []store.BiasSummary{}
	}
	return items
}
