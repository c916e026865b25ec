package locator

// Weights holds the tuned constants of the field and submit-button
// heuristics. The values are empirical; they are kept configurable rather
// than derived.
type Weights struct {
	KeywordMatch        float64
	NegativeKeyword     float64
	TypeSubmit          float64
	SoleButtonInForm    float64
	IconPresent         float64
	PaperPlaneIcon      float64
	NearDistance        float64
	NearBonus           float64
	MidDistance         float64
	MidBonus            float64
	FarDistance         float64
	FarBonus            float64
	TrailingBonus       float64
	SoftDisabledPenalty float64
	DisabledPenalty     float64

	// ContentEditableAreaFactor scales the area of content-editable regions
	// when picking the largest field, since rich-text blocks are often large.
	ContentEditableAreaFactor float64

	// MaxAncestorDepth bounds the upward button search.
	MaxAncestorDepth int
}

func DefaultWeights() Weights {
	return Weights{
		KeywordMatch:              40,
		NegativeKeyword:           -50,
		TypeSubmit:                30,
		SoleButtonInForm:          25,
		IconPresent:               10,
		PaperPlaneIcon:            30,
		NearDistance:              100,
		NearBonus:                 25,
		MidDistance:               250,
		MidBonus:                  15,
		FarDistance:               500,
		FarBonus:                  5,
		TrailingBonus:             5,
		SoftDisabledPenalty:       -200,
		DisabledPenalty:           -1000,
		ContentEditableAreaFactor: 0.5,
		MaxAncestorDepth:          10,
	}
}

func (w Weights) normalized() Weights {
	d := DefaultWeights()
	if w.MaxAncestorDepth <= 0 {
		w.MaxAncestorDepth = d.MaxAncestorDepth
	}
	if w.ContentEditableAreaFactor <= 0 {
		w.ContentEditableAreaFactor = d.ContentEditableAreaFactor
	}
	if w.DisabledPenalty >= 0 {
		w.DisabledPenalty = d.DisabledPenalty
	}
	return w
}

var submitKeywords = []string{"send", "submit", "送信", "enviar", "envoyer", "senden", "invia"}

// exactSubmitTexts only count when they are the whole label.
var exactSubmitTexts = []string{"go", "ask", "ok"}

var negativeKeywords = []string{
	"cancel", "clear", "delete", "remove", "close", "attach", "upload",
	"voice", "microphone", "dictat", "stop", "menu", "setting", "login", "sign in",
}

var fieldKeywords = []string{"search", "chat", "message"}

var knownPlaceholders = []string{
	"message", "ask anything", "ask gemini", "send a message", "type a message",
	"enter a prompt", "reply to", "メッセージ", "質問",
}

var knownFieldClasses = []string{"ProseMirror", "ql-editor", "chat-input", "message-input", "prompt-textarea"}
