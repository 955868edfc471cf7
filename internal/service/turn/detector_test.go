package turn

import "testing"

func TestDetector_IsEndOfTurn(t *testing.T) {
	d := New(nil, nil)

	tests := []struct {
		text string
		want bool
	}{
		{"that's all", true},
		{"I like turtles", false},
		{"", false},
		{" a ", false},
		{"I think I did well, That's All.", true},
		{"ok I'm done now", true},
		{"I’m done", true},
		{"Thank you for the question", true},
		{"I have finished the project last year", true},
		{"nothing to see", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := d.IsEndOfTurn(tt.text); got != tt.want {
				t.Errorf("IsEndOfTurn(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetector_FirstMatchWins(t *testing.T) {
	d := New([]string{"thank you", "that's all"}, nil)

	if got := d.MatchedPhrase("that's all, thank you"); got != "thank you" {
		t.Errorf("expected first vocabulary entry to win, got %q", got)
	}
}

func TestDetector_StripEndPhrase(t *testing.T) {
	d := New(nil, nil)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"trailing phrase", "I studied hard, that's all", "I studied hard"},
		{"trailing punctuation", "I think I did well, that's all.", "I think I did well"},
		{"case insensitive", "We shipped it on time. That's All!", "We shipped it on time"},
		{"curly apostrophe", "I led the team, I’m done", "I led the team"},
		{"standalone word", "I refactored the module done", "I refactored the module"},
		{"only phrase", "that's all", ""},
		{"only word", "done", ""},
		{"no closing", "I like turtles", "I like turtles"},
		{"phrase not trailing", "thank you for asking, I enjoy Go", "thank you for asking, I enjoy Go"},
		{"partial word untouched", "the task was unfinished", "the task was unfinished"},
		{"whitespace", "  I built it   ", "I built it"},
		{"word before phrase kept", "the project is finished, that's all", "the project is finished"},
		{"word before word phrase kept", "We are done. Thank you.", "We are done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.StripEndPhrase(tt.text); got != tt.want {
				t.Errorf("StripEndPhrase(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestVocabulary_Korean(t *testing.T) {
	phrases, words := Vocabulary("ko-KR")
	d := New(phrases, words)

	if !d.IsEndOfTurn("저는 열심히 했습니다 이상입니다") {
		t.Error("expected Korean closing phrase to be detected")
	}
	if got := d.StripEndPhrase("저는 열심히 했습니다 이상입니다"); got != "저는 열심히 했습니다" {
		t.Errorf("unexpected stripped answer %q", got)
	}
	if got := d.StripEndPhrase("프로젝트를 완성했어요 끝"); got != "프로젝트를 완성했어요" {
		t.Errorf("unexpected stripped answer %q", got)
	}
}

func TestVocabulary_DefaultsForUnknownLanguage(t *testing.T) {
	phrases, words := Vocabulary("fr-FR")
	if len(phrases) != len(DefaultEndPhrases) || len(words) != len(DefaultEndWords) {
		t.Error("expected English defaults for unknown language")
	}
}
