package post

import (
	"regexp"
	"strings"
)

// specialTokens are whisper-style bracketed non-speech markers that a
// caller may want stripped before the text ever reaches Process.
var specialTokens = []string{
	"[MUSIC]", "[MUSIC PLAYING]", "[APPLAUSE]", "[LAUGHTER]",
	"[NOISE]", "[SILENCE]", "[BLANK_AUDIO]", "[INAUDIBLE]",
	"[CROSSTALK]", "[SPEAKING FOREIGN LANGUAGE]", "[SPEAKING NON-ENGLISH]",
	"[SIGH]", "[SIGHS]",
}

var (
	asteriskPattern = regexp.MustCompile(`\*[^*]+\*`)
	parenPattern    = regexp.MustCompile(`(?i)\([^)]*(music|noise|applause|laughter|sighs|sigh)[^)]*\)`)
	bracketPattern  = regexp.MustCompile(`(?i)\[(?:MUSIC|APPLAUSE|LAUGHTER|INAUDIBLE|NOISE|CROSSTALK|SILENCE|SPEAKING FOREIGN LANGUAGE|SPEAKING NON-ENGLISH|SIGH|SIGHS)\]`)
	fillerWords     = []string{"Hmm", "Um", "Uh", "Uhh", "Like", "So", "Yeah"}
)

// CleanDisfluencies is an optional pre-clean pass a caller may run
// before Process: it strips non-speech bracket/parenthetical markers
// and collapses repeated filler words that real-time STT backends
// commonly emit. It does not touch Process's pinned width-normalization
// and dictionary semantics.
func CleanDisfluencies(text string) string {
	if text == "" {
		return ""
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		upper := strings.ToUpper(trimmed)
		for _, tok := range specialTokens {
			if strings.Contains(upper, strings.ToUpper(tok)) {
				return ""
			}
		}
		return trimmed
	}

	text = asteriskPattern.ReplaceAllString(trimmed, "")
	text = parenPattern.ReplaceAllString(text, "")
	text = bracketPattern.ReplaceAllString(text, "")
	text = collapseFillerWords(text)

	spacePattern := regexp.MustCompile(`\s+`)
	text = spacePattern.ReplaceAllString(text, " ")

	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, " ,", ",")
	text = strings.ReplaceAll(text, " ?", "?")
	text = strings.ReplaceAll(text, " !", "!")

	text = strings.TrimSpace(text)
	if len(text) > 0 {
		text = strings.ToUpper(text[:1]) + text[1:]
	}
	return text
}

func collapseFillerWords(text string) string {
	for _, word := range fillerWords {
		pattern := regexp.MustCompile(`(?i)(?:\s*` + regexp.QuoteMeta(word) + `\s*,?\s*){2,}`)
		text = pattern.ReplaceAllString(text, " "+word+" ")
	}
	return text
}
