package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bias-audit/backend/internal/scoring"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "decisions.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleRecord(text string, findings ...scoring.Finding) *DecisionRecord {
	rec := &DecisionRecord{Text: text, Importance: 60, PreConfidence: 40, PostConfidence: 70}
	rec.SetFindings(findings)
	rec.SetInterventions([]string{"一晩おいて再評価（24時間ルール）"})
	return rec
}

func TestAppendAssignsIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := sampleRecord("PCを買うか迷う", scoring.Finding{
		Type: "framing", Label: "フレーミング効果", Confidence: "B", Score: 1.5,
		Evidence: []string{"お得", "限定", "今だけ", "先着"},
	})
	require.NoError(t, db.Append(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.Len(t, rec.PublicID, 36)
	assert.False(t, rec.RecordedAt.IsZero())

	rows, total, err := db.List(ctx, DecisionQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"お得", "限定", "今だけ"}, rows[0].Evidence())
	assert.Equal(t, []BiasSummary{{Type: "framing", Label: "フレーミング効果", Confidence: "B", Score: 1.5}}, rows[0].Biases())
	assert.Equal(t, []string{}, rows[0].Options())

	assert.Error(t, db.Append(ctx, rec), "stored rows cannot be appended again")
}

func TestAppendValidates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tests := []struct {
		name string
		rec  *DecisionRecord
	}{
		{"nil", nil},
		{"blank text", &DecisionRecord{Text: "  "}},
		{"pre confidence", &DecisionRecord{Text: "x", PreConfidence: 101}},
		{"post confidence", &DecisionRecord{Text: "x", PostConfidence: -1}},
		{"importance", &DecisionRecord{Text: "x", Importance: 500}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, db.Append(ctx, tc.rec))
		})
	}
	count, err := db.CountDecisions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListKeepsAppendOrderAndFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sunk := scoring.Finding{Type: "sunk_cost", Label: "サンクコストの誤謬", Confidence: "A", Score: 2}
	for _, rec := range []*DecisionRecord{
		sampleRecord("ジムを続けるか", sunk),
		sampleRecord("ジムを続けるか"),
		sampleRecord("転職するか", sunk),
	} {
		require.NoError(t, db.Append(ctx, rec))
	}

	rows, total, err := db.List(ctx, DecisionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, "ジムを続けるか", rows[0].Text)
	assert.Equal(t, "転職するか", rows[2].Text)
	assert.Less(t, rows[0].ID, rows[1].ID)

	rows, total, err = db.List(ctx, DecisionQuery{Query: "ジム"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)

	rows, total, err = db.List(ctx, DecisionQuery{Label: "sunk_cost", Sort: "newest"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "転職するか", rows[0].Text)

	rows, total, err = db.List(ctx, DecisionQuery{Label: "サンクコストの誤謬", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "転職するか", rows[0].Text)
}

func TestQueryPage(t *testing.T) {
	records := []DecisionRecord{{Text: "a"}, {Text: "b"}, {Text: "ab"}}
	rows, total := DecisionQuery{Query: "a", Sort: "newest", Limit: 1}.Page(records)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "ab", rows[0].Text)

	rows, total = DecisionQuery{Offset: 10}.Page(records)
	assert.Equal(t, int64(3), total)
	assert.Empty(t, rows)
}

func TestListFiltersMatchInMemoryPage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, rec := range []*DecisionRecord{
		sampleRecord("ABC plan", scoring.Finding{Type: "framing", Label: "フレーミング効果", Confidence: "B", Score: 1}),
		sampleRecord("50% off sale", scoring.Finding{Type: "sunk_cost", Label: "サンクコストの誤謬", Confidence: "A", Score: 2}),
		sampleRecord("a_b notes"),
	} {
		require.NoError(t, db.Append(ctx, rec))
	}
	all, _, err := db.List(ctx, DecisionQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	tests := []struct {
		name  string
		query DecisionQuery
		want  []string
	}{
		{"percent is literal", DecisionQuery{Query: "0%o"}, nil},
		{"percent between letters", DecisionQuery{Query: "a%b"}, nil},
		{"underscore is literal", DecisionQuery{Query: "_"}, []string{"a_b notes"}},
		{"case sensitive", DecisionQuery{Query: "abc"}, nil},
		{"exact case", DecisionQuery{Query: "ABC"}, []string{"ABC plan"}},
		{"percent sign", DecisionQuery{Query: "50%"}, []string{"50% off sale"}},
		{"label", DecisionQuery{Label: "フレーミング効果"}, []string{"ABC plan"}},
		{"type", DecisionQuery{Label: "sunk_cost"}, []string{"50% off sale"}},
		{"label wildcard", DecisionQuery{Label: "sunk%"}, nil},
		{"label prefix", DecisionQuery{Label: "sunk"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total, err := db.List(ctx, tt.query)
			require.NoError(t, err)
			paged, pagedTotal := tt.query.Page(all)

			assert.Equal(t, tt.want, texts(rows))
			assert.Equal(t, tt.want, texts(paged))
			assert.Equal(t, int64(len(tt.want)), total)
			assert.Equal(t, total, pagedTotal)
		})
	}
}

func texts(rows []DecisionRecord) []string {
	var out []string
	for _, row := range rows {
		out = append(out, row.Text)
	}
	return out
}
