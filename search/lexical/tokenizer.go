package lexical

import (
	"strings"
	"unicode"
)

// Tokenizer languages.
const (
	LangAuto    = "auto"
	LangEnglish = "en"
	LangChinese = "zh"
)

// englishStopwords is a compact list; rare function words that survive it
// score low under IDF anyway.
var englishStopwords = map[string]struct{}{}

// chineseStopwords covers the usual particles and connectives.
var chineseStopwords = map[string]struct{}{}

func init() {
	en := []string{
		"i", "me", "my", "we", "our", "you", "your", "he", "him", "his",
		"she", "her", "it", "its", "they", "them", "their", "what", "which",
		"who", "this", "that", "these", "those", "am", "is", "are", "was",
		"were", "be", "been", "being", "have", "has", "had", "do", "does",
		"did", "a", "an", "the", "and", "but", "if", "or", "because", "as",
		"until", "while", "of", "at", "by", "for", "with", "about", "to",
		"from", "in", "out", "on", "off", "over", "under", "again", "then",
		"once", "so", "not", "no", "can", "will", "just",
	}
	for _, w := range en {
		englishStopwords[w] = struct{}{}
	}

	zh := []string{
		"的", "了", "在", "是", "我", "有", "和", "就", "不", "人", "都",
		"一", "一个", "上", "也", "很", "到", "说", "要", "去", "你", "会",
		"着", "没有", "看", "好", "自己", "这", "那", "里", "就是", "还",
		"把", "比", "或者", "因为", "所以", "但是", "然后", "如果", "虽然",
		"可是", "然而", "因此", "这样", "那样",
	}
	for _, w := range zh {
		chineseStopwords[w] = struct{}{}
	}
}

// tokenizer performs language-aware segmentation. Latin-script text is
// lowercased and split on non-alphanumeric runes; unsegmented scripts (han)
// are split into overlapping character bigrams. The same tokenizer must be
// used for documents and queries, otherwise BM25 term matching breaks.
type tokenizer struct {
	language string
}

func newTokenizer(language string) *tokenizer {
	switch language {
	case LangEnglish, LangChinese:
		return &tokenizer{language: language}
	default:
		return &tokenizer{language: LangAuto}
	}
}

// detectLanguage classifies text by the ratio of han characters among
// letters; above 0.3 the text is treated as Chinese.
func detectLanguage(text string) string {
	var han, letters int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
			letters++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters == 0 {
		return LangEnglish
	}
	if float64(han)/float64(letters) > 0.3 {
		return LangChinese
	}
	return LangEnglish
}

func (t *tokenizer) tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	language := t.language
	if language == LangAuto {
		language = detectLanguage(text)
	}
	if language == LangChinese {
		return tokenizeChinese(text)
	}
	return tokenizeEnglish(text)
}

func tokenizeEnglish(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := englishStopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenizeChinese emits overlapping bigrams for han runs and falls back to
// latin word segmentation for embedded ASCII. Bigrams approximate dictionary
// segmentation well enough for retrieval and need no external model.
func tokenizeChinese(text string) []string {
	var tokens []string
	var hanRun []rune
	var latinRun []rune

	flushHan := func() {
		switch {
		case len(hanRun) == 1:
			tokens = appendIfNotStopword(tokens, string(hanRun), chineseStopwords)
		case len(hanRun) > 1:
			for i := 0; i+1 < len(hanRun); i++ {
				tokens = appendIfNotStopword(tokens, string(hanRun[i:i+2]), chineseStopwords)
			}
		}
		hanRun = hanRun[:0]
	}
	flushLatin := func() {
		if len(latinRun) > 0 {
			tokens = append(tokens, tokenizeEnglish(string(latinRun))...)
			latinRun = latinRun[:0]
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushLatin()
			hanRun = append(hanRun, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			latinRun = append(latinRun, r)
		default:
			flushHan()
			flushLatin()
		}
	}
	flushHan()
	flushLatin()
	return tokens
}

func appendIfNotStopword(tokens []string, token string, stopwords map[string]struct{}) []string {
	if _, stop := stopwords[token]; stop {
		return tokens
	}
	return append(tokens, token)
}
