package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// BiasRule describes one bias category and its keyword signature.
type BiasRule struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Explanation   string   `json:"explain"`
	Keywords      []string `json:"keywords"`
	Interventions []string `json:"interventions"`
}

// RuleStore is an ordered, read-only bias catalogue keyed by rule ID.
type RuleStore struct {
	order []string
	rules map[string]BiasRule
}

// ruleDocument mirrors one entry of the declarative rule file.
type ruleDocument struct {
	Label         string   `json:"label" yaml:"label"`
	Explain       string   `json:"explain" yaml:"explain"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
	Keywords      []string `json:"keywords" yaml:"keywords"`
	Interventions []string `json:"interventions" yaml:"interventions"`
}

// NewRuleStore builds a store from rules in iteration order. IDs must be unique and non-empty.
func NewRuleStore(rules ...BiasRule) (*RuleStore, error) {
	store := &RuleStore{rules: make(map[string]BiasRule, len(rules))}
	for _, rule := range rules {
		id := strings.TrimSpace(rule.ID)
		if id == "" {
			return nil, errors.New("rule id is required")
		}
		if _, ok := store.rules[id]; ok {
			return nil, fmt.Errorf("duplicate rule id %q", id)
		}
		rule.ID = id
		if strings.TrimSpace(rule.Label) == "" {
			rule.Label = id
		}
		rule.Keywords = append([]string(nil), rule.Keywords...)
		rule.Interventions = append([]string(nil), rule.Interventions...)
		store.rules[id] = rule
		store.order = append(store.order, id)
	}
	return store, nil
}

// NewEmptyRuleStore returns a store with no rules.
func NewEmptyRuleStore() *RuleStore {
	return &RuleStore{rules: map[string]BiasRule{}}
}

// Len reports the number of rules.
func (s *RuleStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IDs returns rule identifiers in iteration order.
func (s *RuleStore) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Get returns a copy of the rule registered under id.
func (s *RuleStore) Get(id string) (BiasRule, bool) {
	if s == nil {
		return BiasRule{}, false
	}
	rule, ok := s.rules[id]
	if !ok {
		return BiasRule{}, false
	}
	return copyRule(rule), true
}

// Rules returns copies of every rule in iteration order.
func (s *RuleStore) Rules() []BiasRule {
	if s == nil {
		return nil
	}
	out := make([]BiasRule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRule(s.rules[id]))
	}
	return out
}

// each walks the rules in order without copying. Callers must not mutate the rule.
func (s *RuleStore) each(fn func(rule BiasRule)) {
	if s == nil {
		return
	}
	for _, id := range s.order {
		fn(s.rules[id])
	}
}

func copyRule(rule BiasRule) BiasRule {
	rule.Keywords = append([]string(nil), rule.Keywords...)
	rule.Interventions = append([]string(nil), rule.Interventions...)
	return rule
}

// LoadRules reads the rule file at path. Any failure is logged and the built-in
// defaults are returned instead; the caller never sees an error.
func LoadRules(path string) *RuleStore {
	store, err := ReadRules(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("rule file unavailable; using built-in rules")
		return DefaultRules()
	}
	logrus.WithFields(logrus.Fields{
		"path":  path,
		"rules": store.Len(),
	}).Info("bias rules loaded")
	return store
}

// ReadRules parses the rule file at path. YAML is used for .yaml/.yml files, JSON otherwise.
func ReadRules(path string) (*RuleStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rule path is empty")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var rules []BiasRule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		rules, err = parseYAMLRules(data)
	default:
		rules, err = parseJSONRules(data)
	}
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, errors.New("rule file has no entries")
	}
	return NewRuleStore(rules...)
}

func parseJSONRules(data []byte) ([]BiasRule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("unmarshal rules: top level must be an object")
	}

	var rules []BiasRule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("unmarshal rules: %w", err)
		}
		id, _ := keyTok.(string)
		var doc ruleDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("unmarshal rule %q: %w", id, err)
		}
		rules = append(rules, doc.toRule(id))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return rules, nil
}

func parseYAMLRules(data []byte) ([]BiasRule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("unmarshal rules: empty document")
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, errors.New("unmarshal rules: top level must be a mapping")
	}

	rules := make([]BiasRule, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		id := mapping.Content[i].Value
		var doc ruleDocument
		if err := mapping.Content[i+1].Decode(&doc); err != nil {
			return nil, fmt.Errorf("unmarshal rule %q: %w", id, err)
		}
		rules = append(rules, doc.toRule(id))
	}
	return rules, nil
}

func (d ruleDocument) toRule(id string) BiasRule {
	explanation := d.Explain
	if strings.TrimSpace(explanation) == "" {
		explanation = d.Explanation
	}
	return BiasRule{
		ID:            id,
		Label:         d.Label,
		Explanation:   explanation,
		Keywords:      d.Keywords,
		Interventions: d.Interventions,
	}
}

var (
	cacheMu    sync.Mutex
	ruleCaches = make(map[string]*cachedRules)
)

type cachedRules struct {
	once  sync.Once
	store *RuleStore
}

// CachedRules loads the rule file once per process and path and returns the shared store.
func CachedRules(path string) *RuleStore {
	key := filepath.Clean(path)
	cacheMu.Lock()
	entry, ok := ruleCaches[key]
	if !ok {
		entry = &cachedRules{}
		ruleCaches[key] = entry
	}
	cacheMu.Unlock()

	entry.once.Do(func() {
		entry.store = LoadRules(path)
	})
	return entry.store
}

// DefaultRules returns the built-in catalogue.
func DefaultRules() *RuleStore {
	store, err := NewRuleStore(defaultRules()...)
	if err != nil {
		panic(err)
	}
	return store
}

func defaultRules() []BiasRule {
	return []BiasRule{
		{
			ID:          "confirmation",
			Label:       "確証バイアス",
			Explanation: "自分の考えに合う情報ばかりを集め、反対の意見を無視してしまう思考のくせ。",
			Keywords:    []string{"自分の考えに合う", "都合が良い", "反対の情報を無視"},
			Interventions: []string{
				"反対の証拠を最低1つ探してみよう",
				"立場が逆の人になりきって主張を書いてみよう",
			},
		},
		{
			ID:          "sunk_cost",
			Label:       "サンクコストの誤謬",
			Explanation: "これまで使った時間やお金がもったいなくて、続けるか迷う心理。",
			Keywords:    []string{"ここまで投資", "もったいない", "元を取る"},
			Interventions: []string{
				"今から始めるとしても同じ判断をするか？を考えてみよう",
				"未来の利益だけで判断してみよう",
			},
		},
		{
			ID:          "loss_aversion",
			Label:       "損失回避バイアス",
			Explanation: "得よりも『損したくない』気持ちが強くなる心理。",
			Keywords:    []string{"損したくない", "失う", "無駄になる"},
			Interventions: []string{
				"失うものと得られるものを並べて比べよう",
				"目的（何のため？）を思い出して判断しよう",
			},
		},
		{
			ID:          "availability",
			Label:       "利用可能性ヒューリスティック",
			Explanation: "よく聞く/最近見た情報ほど『正しい』と感じてしまう思い込み。",
			Keywords:    []string{"よく聞く", "SNSで見た", "話題"},
			Interventions: []string{
				"SNSではなく一次情報（公式サイトなど）を1つ確認しよう",
				"話題性と現実の確率を分けて考えよう",
			},
		},
		{
			ID:          "framing",
			Label:       "フレーミング効果",
			Explanation: "『お得！』『今だけ！』などの言い方で判断が変わる心理。",
			Keywords:    []string{"お得", "割引", "限定", "今だけ", "先着"},
			Interventions: []string{
				"別表現（損/得）に言い換えて比べてみよう",
				"長期的なコストやリスクを見直そう",
			},
		},
	}
}
