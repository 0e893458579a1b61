// Package sanitize implements the deterministic output stage applied to
// every assistant reply, always last. It is pure string manipulation: no
// model calls, no I/O, and it never fails.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// LanguageRules are the per-language formatting rules selected by the
// caller's declared language preference.
type LanguageRules struct {
	// EmojiCap is the maximum number of emoji kept (surplus is dropped).
	EmojiCap int
	// QuestionMark is the terminal question character for the language.
	QuestionMark rune
}

// RulesFor returns the formatting rules for a preferred-language code.
// Unknown languages get the defaults.
func RulesFor(lang string) LanguageRules {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "ar", "arabic", "fa", "farsi", "ur", "urdu":
		// Right-to-left scripts use the mirrored question mark.
		return LanguageRules{EmojiCap: 1, QuestionMark: '؟'}
	case "de", "german", "fr", "french", "es", "spanish":
		return LanguageRules{EmojiCap: 2, QuestionMark: '?'}
	default:
		return LanguageRules{EmojiCap: 2, QuestionMark: '?'}
	}
}

var (
	markdownLink  = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	leadingMarker = regexp.MustCompile(`^\s*(?:#{1,6}\s+|[-*+•]\s+|>\s+|\d+[.)]\s+)`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// disallowed are the formatting delimiters stripped from every reply:
// markdown emphasis/code, math delimiters, and brace/bracket artifacts.
const disallowed = "*`\\{}[]#_~$"

// Process sanitizes text with the default rules.
func Process(text string) string {
	return ProcessWithRules(text, RulesFor(""))
}

// ProcessWithRules applies the full sanitation pass:
//
//  1. markdown links collapse to their text
//  2. heading/bullet/quote markers are removed per line
//  3. disallowed delimiter runes are dropped
//  4. whitespace collapses to single spaces
//  5. emoji beyond the cap are dropped
//  6. exactly one terminal question mark is enforced
func ProcessWithRules(text string, rules LanguageRules) string {
	text = markdownLink.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = leadingMarker.ReplaceAllString(line, "")
	}
	text = strings.Join(lines, " ")

	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(disallowed, r) {
			return -1
		}
		return r
	}, text)

	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	text = capEmoji(text, rules.EmojiCap)
	text = enforceSingleQuestion(text, rules.QuestionMark)

	return text
}

// enforceSingleQuestion converts every question mark to a period, then,
// if the input asked anything at all, restores a single terminal question
// mark in the language's script.
func enforceSingleQuestion(text string, qm rune) string {
	hadQuestion := strings.ContainsAny(text, "?؟")
	if !hadQuestion {
		return text
	}

	replacer := strings.NewReplacer("?", ".", "؟", ".")
	text = replacer.Replace(text)

	// Drop trailing periods/spaces left by the conversion, then close
	// with the single terminal question mark.
	text = strings.TrimRight(text, ". ")
	return text + string(qm)
}

// capEmoji keeps at most cap emoji, dropping the rest. A negative cap
// keeps everything.
func capEmoji(text string, limit int) string {
	if limit < 0 {
		return text
	}
	count := 0
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			count++
			if count > limit {
				continue
			}
		}
		sb.WriteRune(r)
	}
	// Collapse any double spaces created by dropped emoji.
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(sb.String(), " "))
}

// isEmoji reports whether r falls in the common emoji blocks.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case unicode.Is(unicode.Sk, r) && r >= 0x1F000:
		return true
	default:
		return false
	}
}
