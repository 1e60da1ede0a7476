package agent

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Supported answer languages. Anything else falls back to English.
const (
	LangEnglish = "en"
	LangRussian = "ru"
	LangUzbek   = "uz"
)

var (
	cyrillicRe  = regexp.MustCompile(`[а-яё]`)
	latinRe     = regexp.MustCompile(`[a-z]`)
	uzbekCharRe = regexp.MustCompile(`[ўқғҳ]`)
)

// DetectLanguage classifies text as en, ru, or uz. Short inputs use a
// character-class heuristic; longer inputs go through statistical
// detection with the same heuristic as a fallback.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)

	if len([]rune(strings.TrimSpace(lower))) < 10 {
		return detectByCharClass(lower)
	}

	info := whatlanggo.Detect(text)
	switch info.Lang {
	case whatlanggo.Eng:
		return LangEnglish
	case whatlanggo.Rus:
		return LangRussian
	case whatlanggo.Uzb:
		return LangUzbek
	}
	return detectByCharClass(lower)
}

func detectByCharClass(lower string) string {
	cyrillic := len(cyrillicRe.FindAllString(lower, -1))
	latin := len(latinRe.FindAllString(lower, -1))
	uzbek := len(uzbekCharRe.FindAllString(lower, -1))

	if cyrillic+latin+uzbek == 0 {
		return LangEnglish
	}
	if uzbek > 0 {
		return LangUzbek
	}
	if cyrillic > latin {
		return LangRussian
	}
	return LangEnglish
}
