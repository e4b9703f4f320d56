package scoring

// SoftCueSet maps a rule ID to weaker, indirect cue phrases.
type SoftCueSet map[string][]string

// EmotionLexicon lists emotion words feeding the affect finding.
type EmotionLexicon []string

const (
	// AffectType is the finding type of the emotion heuristic.
	AffectType        = "affect"
	AffectLabel       = "感情ヒューリスティック"
	AffectExplanation = "不安・焦り・嬉しさなどの感情が判断を左右してしまう心理。"
)

var affectSuggestions = []string{
	"一晩おいて再評価（24時間ルール）",
	"第三者の短評（外部視点）を3行もらう",
}

// DefaultSoftCues returns the built-in cue table.
func DefaultSoftCues() SoftCueSet {
	return SoftCueSet{
		"confirmation":  {"確信", "間違いない", "絶対", "都合の良い", "見たいものだけ"},
		"sunk_cost":     {"せっかく", "ここまでやった", "元を取る", "もったいない"},
		"loss_aversion": {"損したくない", "無駄", "後悔"},
		"availability":  {"よく聞く", "みんな言ってる", "SNSで見た", "バズってる"},
		"framing":       {"お得", "限定", "今だけ", "先着"},
	}
}

// DefaultEmotionLexicon returns the built-in emotion words.
func DefaultEmotionLexicon() EmotionLexicon {
	return EmotionLexicon{"不安", "焦り", "ワクワク", "怖い", "嬉しい", "悔しい", "怒り", "緊張"}
}

// AffectSuggestions returns the fixed suggestions attached to the affect finding.
func AffectSuggestions() []string {
	return append([]string(nil), affectSuggestions...)
}
