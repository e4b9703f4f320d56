package wizard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTheme is returned for a theme outside the catalogue.
	ErrUnknownTheme = errors.New("unknown theme")
	// ErrUnknownSituation is returned for a situation not listed under the theme.
	ErrUnknownSituation = errors.New("unknown situation")
)

// NoExamplePlaceholder is shown when a theme/situation pair has no canned examples.
const NoExamplePlaceholder = "（該当の具体例がありません）"

const previewFollowUp = "判断材料を整理し、短期と長期の視点の両方から検討したいです。"

// Selection is the in-progress choice of one guided-input flow. It lives only
// for the request that carries it.
type Selection struct {
	Theme     string `json:"theme"`
	Situation string `json:"situation"`
	Example   string `json:"example"`
}

type pair struct {
	theme     string
	situation string
}

// Catalog holds the guided-input choices.
type Catalog struct {
	themes     []string
	situations map[string][]string
	examples   map[pair][]string
}

// Themes returns the themes in display order.
func (c *Catalog) Themes() []string {
	return append([]string(nil), c.themes...)
}

// Situations lists the situations under theme.
func (c *Catalog) Situations(theme string) ([]string, error) {
	sits, ok := c.situations[theme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}
	return append([]string(nil), sits...), nil
}

// Examples lists the canned example texts for a theme and situation. A valid
// pair without examples yields an empty list.
func (c *Catalog) Examples(theme, situation string) ([]string, error) {
	if err := c.validatePair(theme, situation); err != nil {
		return nil, err
	}
	return append([]string{}, c.examples[pair{theme, situation}]...), nil
}

// Validate checks that the selection's theme and situation belong together.
// The example is free text and is not checked.
func (c *Catalog) Validate(sel Selection) error {
	return c.validatePair(sel.Theme, sel.Situation)
}

func (c *Catalog) validatePair(theme, situation string) error {
	sits, ok := c.situations[theme]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}
	for _, s := range sits {
		if s == situation {
			return nil
		}
	}
	return fmt.Errorf("%w: %q under %q", ErrUnknownSituation, situation, theme)
}

// MakePreview turns a chosen example into editable decision text. An empty or
// placeholder example yields an empty preview.
func MakePreview(example string) string {
	base := strings.TrimSpace(example)
	if base == "" || strings.Contains(base, "（該当") {
		return ""
	}
	return base + "\n" + previewFollowUp
}

// Default returns the built-in catalogue.
func Default() *Catalog {
	return &Catalog{
		themes: []string{"お金・家計", "仕事・キャリア", "スキル・学習", "人間関係（職場）", "健康・生活リズム", "住まい・暮らし"},
		situations: map[string][]string{
			"お金・家計":    {"買うか迷う", "契約やサブスクを見直す", "投資や貯金の判断"},
			"仕事・キャリア":  {"転職・異動を考える", "資格取得するか", "残業や業務の優先順位"},
			"スキル・学習":   {"学習計画を立てる", "教材やスクールを選ぶ", "継続するか中断するか"},
			"人間関係（職場）": {"上司への相談", "同僚への依頼", "会議での発言"},
			"健康・生活リズム": {"運動や睡眠の見直し", "食事・間食のコントロール", "通院・検査の判断"},
			"住まい・暮らし":  {"家具・家電の買い替え", "引っ越しを検討", "固定費の節約"},
		},
		examples: map[pair][]string{
			{"お金・家計", "買うか迷う"}: {
				"PCを買う／良い条件に感じるが無駄遣いになる不安もある。判断材料や代替案も考えたい。",
				"スマホを買い替える／今の端末でも使えるが、カメラやバッテリーに不満がある。",
				"大型家電を買う／セールで安いが本当に必要か迷っている。",
			},
			{"お金・家計", "契約やサブスクを見直す"}: {
				"動画サブスクを解約するか迷う。あまり見ていないが解約が面倒に感じる。",
				"保険の見直し／特約を付けるべきか、今のままで良いか判断したい。",
			},
			{"仕事・キャリア", "転職・異動を考える"}: {
				"今の部署に残るか、異動希望を出すか迷っている。メリット・デメリットを整理したい。",
				"転職サイトに登録するか判断したい。情報収集が先か、動くべきか迷う。",
			},
			{"スキル・学習", "教材やスクールを選ぶ"}: {
				"英語学習の教材をどれにするか迷う。費用対効果と継続しやすさを比較したい。",
			},
			{"人間関係（職場）", "会議での発言"}: {
				"会議で反対意見を言うべきか迷う。場の空気と建設的な提案のバランスを取りたい。",
			},
			{"健康・生活リズム", "運動や睡眠の見直し"}: {
				"就寝時間が遅い。改善策を小さく始めたい。",
				"運動を週2回に増やしたいが続くか不安。",
			},
			{"住まい・暮らし", "家具・家電の買い替え"}: {
				"仕事用チェアを買い替える。価格と体への負担軽減のバランスを見たい。",
			},
		},
	}
}
