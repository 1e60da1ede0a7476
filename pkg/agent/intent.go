package agent

import (
	"regexp"
	"strings"
)

// Greeting and thanks vocabularies for Uzbek, Russian, and English.
var greetingPatterns = map[string]bool{
	"salom": true, "assalomu alaykum": true, "assalom": true,
	"hayrli kun": true, "hayrli tong": true, "hayrli kech": true,
	"xayrli kun": true, "xayrli tong": true, "xayrli kech": true,
	"привет": true, "здравствуйте": true, "здравствуй": true,
	"добрый день": true, "доброе утро": true, "добрый вечер": true,
	"приветствую": true, "хай": true,
	"hello": true, "hi": true, "hey": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"greetings": true,
}

var thanksPatterns = map[string]bool{
	"rahmat": true, "raxmat": true, "tashakkur": true,
	"спасибо": true, "благодарю": true,
	"thanks": true, "thank you": true, "thx": true,
}

var greetingResponses = map[string]string{
	LangUzbek:   "Assalomu alaykum! HR siyosatlari bo'yicha qanday yordam bera olaman?",
	LangRussian: "Здравствуйте! Чем могу помочь по вопросам HR политики?",
	LangEnglish: "Hello! How can I help you with HR policies?",
}

var thanksResponses = map[string]string{
	LangUzbek:   "Arzimaydi! Yana savollaringiz bo'lsa, bemalol murojaat qiling.",
	LangRussian: "Пожалуйста! Если у вас будут ещё вопросы, обращайтесь.",
	LangEnglish: "You're welcome! Feel free to ask if you have more questions.",
}

// tokenLanguages maps greeting and thanks vocabulary to its language,
// so "salom" answers in Uzbek even though its script is Latin.
var tokenLanguages = map[string]string{
	"salom": LangUzbek, "assalomu alaykum": LangUzbek, "assalom": LangUzbek,
	"hayrli kun": LangUzbek, "hayrli tong": LangUzbek, "hayrli kech": LangUzbek,
	"xayrli kun": LangUzbek, "xayrli tong": LangUzbek, "xayrli kech": LangUzbek,
	"rahmat": LangUzbek, "raxmat": LangUzbek, "tashakkur": LangUzbek,
	"привет": LangRussian, "здравствуйте": LangRussian, "здравствуй": LangRussian,
	"добрый день": LangRussian, "доброе утро": LangRussian, "добрый вечер": LangRussian,
	"приветствую": LangRussian, "хай": LangRussian,
	"спасибо": LangRussian, "благодарю": LangRussian,
	"hello": LangEnglish, "hi": LangEnglish, "hey": LangEnglish,
	"good morning": LangEnglish, "good afternoon": LangEnglish, "good evening": LangEnglish,
	"greetings": LangEnglish,
	"thanks": LangEnglish, "thank you": LangEnglish, "thx": LangEnglish,
}

// GreetingLanguage resolves the reply language for a greeting or
// thanks message. The vocabulary match wins over script detection.
func GreetingLanguage(text string) string {
	cleaned := strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), "!?.,:;")
	if lang, ok := tokenLanguages[cleaned]; ok {
		return lang
	}
	for token, lang := range tokenLanguages {
		if strings.HasPrefix(cleaned, token+" ") || strings.HasPrefix(cleaned, token+",") {
			return lang
		}
	}
	return DetectLanguage(text)
}

var emojiOnlyRe = regexp.MustCompile(
	`^[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}` +
		`\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{FE00}-\x{FE0F}` +
		`\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}\x{1FA70}-\x{1FAFF}` +
		`\x{2600}-\x{26FF}\x{200D}\x{2764}\s]+$`)

// ClassifyIntent labels a message as greeting, thanks, or hr_query
// using pattern matching only. No model call is involved, so greetings
// resolve without touching retrieval.
func ClassifyIntent(text string) string {
	trimmed := strings.TrimSpace(text)
	cleaned := strings.TrimRight(strings.ToLower(trimmed), "!?.,:;")

	if trimmed != "" && emojiOnlyRe.MatchString(trimmed) {
		return IntentGreeting
	}
	if cleaned == "" {
		return IntentGreeting
	}

	if greetingPatterns[cleaned] {
		return IntentGreeting
	}
	if thanksPatterns[cleaned] {
		return IntentThanks
	}

	// Short messages that start with a greeting token are greetings
	// unless they smuggle in a question, e.g. "salom, leave policy?".
	words := strings.Fields(cleaned)
	if len(words) <= 3 {
		first := words[0]
		if greetingPatterns[first] || startsWithMultiword(cleaned, greetingPatterns) {
			if !strings.ContainsAny(cleaned, ",?") || len(words) <= 2 {
				return IntentGreeting
			}
		}
		if thanksPatterns[first] || startsWithMultiword(cleaned, thanksPatterns) {
			return IntentThanks
		}
	}

	return IntentHRQuery
}

func startsWithMultiword(cleaned string, patterns map[string]bool) bool {
	for pattern := range patterns {
		if strings.Contains(pattern, " ") && strings.HasPrefix(cleaned, pattern) {
			return true
		}
	}
	return false
}

// CannedResponse returns the fixed reply for a greeting or thanks
// intent in the given language.
func CannedResponse(intent, language string) string {
	responses := greetingResponses
	if intent == IntentThanks {
		responses = thanksResponses
	}
	if response, ok := responses[language]; ok {
		return response
	}
	return responses[LangEnglish]
}
