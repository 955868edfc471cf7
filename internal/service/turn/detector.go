// Package turn decides from transcript content whether the candidate has
// finished answering.
package turn

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultEndPhrases are closing phrases that mark the end of an answer.
// Matching is case-insensitive and the first match wins.
var DefaultEndPhrases = []string{
	"that's all",
	"that is all",
	"i'm done",
	"i am done",
	"thank you",
	"thanks",
	"finished",
	"that's it",
	"end of answer",
}

// DefaultEndWords are short closing words stripped from the end of an
// answer when no full phrase matched.
var DefaultEndWords = []string{"done", "finished", "end"}

// Korean closing vocabulary. Longer forms come first so that stripping
// removes the whole ending.
var (
	KoreanEndPhrases = []string{
		"이상입니다", "끝입니다", "마칩니다", "감사합니다", "완료입니다", "다했습니다",
		"이상이에요", "끝이에요", "완료에요", "마쳐요",
		"이상", "끝", "완료", "마침",
	}
	KoreanEndWords = []string{"이상", "끝", "완료", "마침"}
)

// Vocabulary returns the built-in closing phrases and words for a BCP-47
// language code. Unknown languages get the English defaults.
func Vocabulary(languageCode string) (phrases, words []string) {
	lang := strings.ToLower(languageCode)
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	switch lang {
	case "ko":
		return KoreanEndPhrases, KoreanEndWords
	default:
		return DefaultEndPhrases, DefaultEndWords
	}
}

const trailingPunct = ".,!?;:… "

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Detector matches a fixed closing vocabulary against transcripts.
type Detector struct {
	phrases []string
	words   []string
}

// New builds a detector. Empty lists fall back to the defaults.
func New(phrases, words []string) *Detector {
	if len(phrases) == 0 {
		phrases = DefaultEndPhrases
	}
	if len(words) == 0 {
		words = DefaultEndWords
	}
	return &Detector{
		phrases: normalizeAll(phrases),
		words:   normalizeAll(words),
	}
}

// Phrases returns the closing phrases in match order.
func (d *Detector) Phrases() []string {
	out := make([]string, len(d.phrases))
	copy(out, d.phrases)
	return out
}

// IsEndOfTurn reports whether text contains a closing phrase anywhere.
// Text shorter than two characters after trimming never matches.
func (d *Detector) IsEndOfTurn(text string) bool {
	return d.match(text) != ""
}

// MatchedPhrase returns the first closing phrase found in text, or "".
func (d *Detector) MatchedPhrase(text string) string {
	return d.match(text)
}

func (d *Detector) match(text string) string {
	t := normalize(text)
	if utf8.RuneCountInString(t) < 2 {
		return ""
	}
	for _, p := range d.phrases {
		if strings.Contains(t, p) {
			return p
		}
	}
	return ""
}

// StripEndPhrase removes a trailing closing phrase from text and returns the
// remaining answer. Only when no phrase trails the text is a trailing
// standalone closing word removed, so "finished, that's all" keeps
// "finished". Text without either is returned trimmed.
func (d *Detector) StripEndPhrase(text string) string {
	cleaned := apostrophes.Replace(strings.TrimSpace(text))

	body := strings.TrimRight(cleaned, trailingPunct)
	for _, p := range d.phrases {
		if rest, ok := cutSuffixFold(body, p); ok {
			return strings.TrimSpace(strings.TrimRight(rest, trailingPunct+"-"))
		}
	}

	for _, w := range d.words {
		if rest, ok := cutSuffixFold(body, w); ok {
			cleaned = strings.TrimRight(rest, trailingPunct+"-")
			break
		}
	}

	return strings.TrimSpace(cleaned)
}

// cutSuffixFold removes suffix from s case-insensitively when it is preceded
// by a word boundary.
func cutSuffixFold(s, suffix string) (string, bool) {
	if len(suffix) == 0 || len(s) < len(suffix) {
		return s, false
	}
	i := len(s) - len(suffix)
	if !utf8.RuneStart(s[i]) || !strings.EqualFold(s[i:], suffix) {
		return s, false
	}
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(s[:i])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) || prev == '\'' {
			return s, false
		}
	}
	return s[:i], true
}

func normalize(s string) string {
	return strings.ToLower(apostrophes.Replace(strings.TrimSpace(s)))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
