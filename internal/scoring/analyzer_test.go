package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules(t *testing.T) *RuleStore {
	t.Helper()
	rules, err := NewRuleStore(
		BiasRule{ID: "anchoring", Label: "アンカリング", Keywords: []string{"定価"}, Interventions: []string{"相場を見る"}},
		BiasRule{ID: "loss_aversion", Label: "損失回避バイアス", Keywords: []string{"損したくない"}, Interventions: []string{"並べて比べる"}},
	)
	require.NoError(t, err)
	return rules
}

func TestThreshold(t *testing.T) {
	assert.InDelta(t, 1.20, Threshold(0), 1e-9)
	assert.InDelta(t, 1.00, Threshold(25), 1e-9)
	assert.InDelta(t, 0.80, Threshold(50), 1e-9)
	assert.InDelta(t, 0.40, Threshold(100), 1e-9)

	for s := 0; s <= 100; s++ {
		assert.InDelta(t, 1.20-0.008*float64(s), Threshold(s), 1e-9, "sensitivity %d", s)
		assert.GreaterOrEqual(t, Threshold(s), 0.40)
		assert.LessOrEqual(t, Threshold(s), 1.20)
		if s > 0 {
			assert.Less(t, Threshold(s), Threshold(s-1), "sensitivity %d", s)
		}
	}
}

func TestThresholdClampsOutOfRange(t *testing.T) {
	assert.Equal(t, Threshold(0), Threshold(-40))
	assert.Equal(t, Threshold(100), Threshold(250))
}

func TestAnalyzeEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t　"} {
		findings, debug := Analyze(text, testRules(t), DefaultSoftCues(), DefaultEmotionLexicon(), 50)
		assert.Empty(t, findings)
		assert.NotNil(t, findings)
		assert.True(t, debug.Empty())
		assert.Equal(t, DebugInfo{}, debug)
	}
}

func TestAnalyzeSingleStrongKeyword(t *testing.T) {
	for _, sensitivity := range []int{25, 50, 75, 100} {
		findings, _ := Analyze("定価を見て決めた", testRules(t), SoftCueSet{}, EmotionLexicon{}, sensitivity)
		require.Len(t, findings, 1, "sensitivity %d", sensitivity)
		assert.Equal(t, "anchoring", findings[0].Type)
		assert.Equal(t, 1.0, findings[0].Score)
		assert.Equal(t, ConfidenceModerate, findings[0].Confidence)
		assert.Equal(t, []string{"定価"}, findings[0].Evidence)
		assert.Equal(t, []string{"相場を見る"}, findings[0].Suggestions)
	}
}

func TestAnalyzeTwoStrongKeywordsAtStrictest(t *testing.T) {
	rules, err := NewRuleStore(BiasRule{ID: "framing", Label: "フレーミング効果", Keywords: []string{"お得", "限定"}})
	require.NoError(t, err)

	findings, debug := Analyze("お得な限定セット", rules, SoftCueSet{}, EmotionLexicon{}, 0)
	require.Len(t, findings, 1)
	assert.Equal(t, 2.0, findings[0].Score)
	assert.Equal(t, ConfidenceHigh, findings[0].Confidence)
	assert.Equal(t, 1.2, debug.Threshold)
}

func TestAnalyzeSoftCuesAccumulate(t *testing.T) {
	cues := SoftCueSet{"anchoring": {"元値"}, "unknown_bias": {"元値"}}
	findings, debug := Analyze("定価と元値を比べた", testRules(t), cues, EmotionLexicon{}, 100)
	require.Len(t, findings, 1)
	assert.Equal(t, 1.5, findings[0].Score)
	assert.Equal(t, []string{"定価", "元値"}, findings[0].Evidence)
	assert.NotContains(t, debug.Scores, "unknown_bias")
}

func TestAnalyzeIsCaseSensitiveAndNegationBlind(t *testing.T) {
	rules, err := NewRuleStore(BiasRule{ID: "availability", Label: "availability", Keywords: []string{"SNS"}})
	require.NoError(t, err)

	findings, _ := Analyze("saw it on sns", rules, SoftCueSet{}, EmotionLexicon{}, 100)
	assert.Empty(t, findings)

	findings, _ = Analyze("別に不安ではない", NewEmptyRuleStore(), SoftCueSet{}, EmotionLexicon{"不安"}, 100)
	require.Len(t, findings, 1)
	assert.Equal(t, AffectType, findings[0].Type)
}

func TestAnalyzeDebugCoversEveryRule(t *testing.T) {
	_, debug := Analyze("特に何もない文章", testRules(t), DefaultSoftCues(), DefaultEmotionLexicon(), 50)
	assert.Equal(t, map[string]float64{
		"アンカリング":    0,
		"損失回避バイアス":  0,
		AffectLabel: 0,
	}, debug.Scores)
	assert.Equal(t, 0.8, debug.Threshold)
}

func TestAnalyzeEmptyRuleStoreOnlyAffect(t *testing.T) {
	findings, debug := Analyze("不安と焦りと怒り", NewEmptyRuleStore(), SoftCueSet{}, DefaultEmotionLexicon(), 50)
	require.Len(t, findings, 1)
	assert.Equal(t, AffectType, findings[0].Type)
	assert.Equal(t, 1.5, findings[0].Score)
	assert.Equal(t, []string{"不安", "焦り", "怒り"}, findings[0].Evidence)
	assert.Equal(t, AffectSuggestions(), findings[0].Suggestions)
	assert.Equal(t, map[string]float64{AffectLabel: 1.5}, debug.Scores)
}

func TestAnalyzeEmotionCountedOncePerWord(t *testing.T) {
	findings, debug := Analyze("不安、不安、とても不安", NewEmptyRuleStore(), SoftCueSet{}, DefaultEmotionLexicon(), 100)
	require.Len(t, findings, 1)
	assert.Equal(t, 0.5, findings[0].Score)
	assert.Equal(t, 0.5, debug.Scores[AffectLabel])
}

func TestAnalyzeSortedByScore(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	report := engine.Run("せっかくここまで投資したのにもったいない。元を取るまで続けたい。お得で今だけ限定らしい。不安と焦りもある。", 100)
	require.NotEmpty(t, report.Findings)
	for i := 1; i < len(report.Findings); i++ {
		assert.GreaterOrEqual(t, report.Findings[i-1].Score, report.Findings[i].Score)
	}
	assert.Equal(t, "sunk_cost", report.Findings[0].Type)
	assert.Equal(t, ConfidenceHigh, report.Findings[0].Confidence)
}

func TestAnalyzeIdempotent(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	text := "SNSで見た話題の商品。損したくないし不安。"
	first := engine.Run(text, 60)
	second := engine.Run(text, 60)
	assert.Equal(t, first, second)
}

func TestAnalyzeScenario(t *testing.T) {
	const text = "定価が高いと思ったが、逃すと後悔しそうで不安になった。"
	cues := SoftCueSet{"loss_aversion": {"後悔しそう", "逃すと"}}
	emotions := EmotionLexicon{"不安"}

	for _, sensitivity := range []int{75, 100} {
		t.Run(fmt.Sprintf("sensitivity %d", sensitivity), func(t *testing.T) {
			findings, debug := Analyze(text, testRules(t), cues, emotions, sensitivity)
			require.Len(t, findings, 3)

			assert.Equal(t, "anchoring", findings[0].Type)
			assert.Equal(t, 1.0, findings[0].Score)
			assert.Equal(t, ConfidenceModerate, findings[0].Confidence)

			assert.Equal(t, "loss_aversion", findings[1].Type)
			assert.Equal(t, 1.0, findings[1].Score)
			assert.Equal(t, ConfidenceModerate, findings[1].Confidence)
			assert.Equal(t, []string{"後悔しそう", "逃すと"}, findings[1].Evidence)

			assert.Equal(t, AffectType, findings[2].Type)
			assert.Equal(t, 0.5, findings[2].Score)
			assert.Equal(t, ConfidenceModerate, findings[2].Confidence)
			assert.Equal(t, []string{"不安"}, findings[2].Evidence)

			assert.Len(t, debug.Scores, 3)
		})
	}

	t.Run("strict", func(t *testing.T) {
		findings, debug := Analyze(text, testRules(t), cues, emotions, 0)
		assert.Empty(t, findings)
		assert.Equal(t, 1.0, debug.Scores["アンカリング"])
		assert.Equal(t, 1.0, debug.Scores["損失回避バイアス"])
		assert.Equal(t, 0.5, debug.Scores[AffectLabel])
	})
}

func TestEvidencePreview(t *testing.T) {
	f := Finding{Evidence: []string{"a", "b", "c", "d"}}
	assert.Equal(t, []string{"a", "b", "c"}, f.EvidencePreview(3))
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.EvidencePreview(0))
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.EvidencePreview(10))
}
