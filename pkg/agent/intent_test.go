package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"uzbek greeting", "salom", IntentGreeting},
		{"uzbek greeting punctuated", "Salom!", IntentGreeting},
		{"uzbek long greeting", "assalomu alaykum", IntentGreeting},
		{"russian greeting", "Здравствуйте", IntentGreeting},
		{"english greeting", "hello", IntentGreeting},
		{"two word greeting", "good morning", IntentGreeting},
		{"emoji only", "👋😊", IntentGreeting},
		{"whitespace only", "   ", IntentGreeting},
		{"punctuation only", "!!!", IntentGreeting},
		{"uzbek thanks", "rahmat", IntentThanks},
		{"russian thanks", "спасибо!", IntentThanks},
		{"english thanks", "thank you", IntentThanks},
		{"greeting hiding a question", "salom, leave policy?", IntentHRQuery},
		{"short greeting with trailer", "hello there", IntentGreeting},
		{"hr question", "How many vacation days do I get?", IntentHRQuery},
		{"russian hr question", "Сколько дней отпуска мне положено?", IntentHRQuery},
		{"greeting word inside sentence", "I want to say hello to HR about my leave", IntentHRQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.query))
		})
	}
}

func TestCannedResponse(t *testing.T) {
	assert.Equal(t,
		"Assalomu alaykum! HR siyosatlari bo'yicha qanday yordam bera olaman?",
		CannedResponse(IntentGreeting, LangUzbek))
	assert.Equal(t,
		"Здравствуйте! Чем могу помочь по вопросам HR политики?",
		CannedResponse(IntentGreeting, LangRussian))
	assert.Equal(t,
		"Hello! How can I help you with HR policies?",
		CannedResponse(IntentGreeting, LangEnglish))
	assert.Equal(t,
		"You're welcome! Feel free to ask if you have more questions.",
		CannedResponse(IntentThanks, LangEnglish))
	assert.Equal(t,
		"Arzimaydi! Yana savollaringiz bo'lsa, bemalol murojaat qiling.",
		CannedResponse(IntentThanks, LangUzbek))

	// Unknown languages fall back to English.
	assert.Equal(t,
		"Hello! How can I help you with HR policies?",
		CannedResponse(IntentGreeting, "de"))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"short uzbek latin", "salom", LangEnglish},
		{"short russian", "привет", LangRussian},
		{"short english", "hello", LangEnglish},
		{"uzbek cyrillic chars", "ишдан бўшаш", LangUzbek},
		{"russian sentence", "Сколько дней отпуска мне положено в этом году?", LangRussian},
		{"english sentence", "How many vacation days am I entitled to this year?", LangEnglish},
		{"digits only", "12345", LangEnglish},
		{"empty", "", LangEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.text))
		})
	}
}
