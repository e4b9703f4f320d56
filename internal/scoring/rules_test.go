package scoring

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuleFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadRulesJSONKeepsDocumentOrder(t *testing.T) {
	path := writeRuleFile(t, "rules.json", `{
		"sunk_cost": {"label": "サンクコスト", "explain": "もったいない心理", "keywords": ["元を取る"], "interventions": ["未来だけ見る"]},
		"anchoring": {"label": "アンカリング", "explanation": "最初の数字", "keywords": ["定価", "元値"]},
		"bare": {}
	}`)

	store, err := ReadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sunk_cost", "anchoring", "bare"}, store.IDs())

	rule, ok := store.Get("sunk_cost")
	require.True(t, ok)
	assert.Equal(t, "もったいない心理", rule.Explanation)
	assert.Equal(t, []string{"未来だけ見る"}, rule.Interventions)

	rule, ok = store.Get("anchoring")
	require.True(t, ok)
	assert.Equal(t, "最初の数字", rule.Explanation)
	assert.Empty(t, rule.Interventions)

	rule, ok = store.Get("bare")
	require.True(t, ok)
	assert.Equal(t, "bare", rule.Label)
	assert.Empty(t, rule.Keywords)
}

func TestReadRulesYAML(t *testing.T) {
	path := writeRuleFile(t, "rules.yaml", `
framing:
  label: フレーミング効果
  keywords: [お得, 今だけ]
  interventions:
    - 言い換えて比べる
confirmation:
  label: 確証バイアス
  explain: 都合の良い情報だけ集める
  keywords: [間違いない]
`)

	store, err := ReadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"framing", "confirmation"}, store.IDs())
	rule, _ := store.Get("confirmation")
	assert.Equal(t, "都合の良い情報だけ集める", rule.Explanation)
}

func TestReadRulesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"broken json", "rules.json", `{"confirmation": {`},
		{"array json", "rules.json", `[1, 2]`},
		{"empty object", "rules.json", `{}`},
		{"wrong field type", "rules.json", `{"x": {"keywords": "not a list"}}`},
		{"duplicate id", "rules.json", `{"x": {}, "x": {}}`},
		{"yaml scalar", "rules.yml", `just text`},
		{"yaml duplicate", "rules.yml", "a: {}\na: {}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadRules(writeRuleFile(t, tc.file, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := ReadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	_, err = ReadRules("")
	assert.Error(t, err)
}

func TestLoadRulesFallsBackToDefaults(t *testing.T) {
	store := LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, []string{"confirmation", "sunk_cost", "loss_aversion", "availability", "framing"}, store.IDs())

	store = LoadRules(writeRuleFile(t, "rules.json", "not json"))
	assert.Equal(t, DefaultRules().IDs(), store.IDs())
}

func TestRuleStoreReturnsCopies(t *testing.T) {
	store := DefaultRules()
	rule, ok := store.Get("framing")
	require.True(t, ok)
	rule.Keywords[0] = "mutated"

	again, _ := store.Get("framing")
	assert.Equal(t, "お得", again.Keywords[0])

	all := store.Rules()
	all[0].Interventions = nil
	first, _ := store.Get(all[0].ID)
	assert.NotEmpty(t, first.Interventions)
}

func TestNewRuleStoreValidation(t *testing.T) {
	_, err := NewRuleStore(BiasRule{ID: " "})
	assert.Error(t, err)
	_, err = NewRuleStore(BiasRule{ID: "a"}, BiasRule{ID: "a"})
	assert.Error(t, err)
	assert.Equal(t, 0, NewEmptyRuleStore().Len())
}

func TestCachedRulesLoadsOnce(t *testing.T) {
	path := writeRuleFile(t, "rules.json", `{"only": {"label": "only", "keywords": ["x"]}}`)

	var wg sync.WaitGroup
	results := make([]*RuleStore, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = CachedRules(path)
		}(i)
	}
	wg.Wait()

	for _, store := range results {
		assert.Same(t, results[0], store)
	}

	require.NoError(t, os.WriteFile(path, []byte(`{"other": {}}`), 0o600))
	assert.Equal(t, []string{"only"}, CachedRules(path).IDs())
}

func TestShippedRuleFile(t *testing.T) {
	store, err := ReadRules("bias_rules.json")
	require.NoError(t, err)
	assert.Equal(t, append(DefaultRules().IDs(), "anchoring"), store.IDs())

	for _, want := range DefaultRules().Rules() {
		got, ok := store.Get(want.ID)
		require.True(t, ok, want.ID)
		assert.Equal(t, want, got)
	}
}
