package agent

import (
	"strings"
)

// Query types used to adapt the response format.
const (
	queryTypeDefinition = "definition"
	queryTypeComparison = "comparison"
	queryTypeHowTo      = "how_to"
	queryTypeList       = "list"
	queryTypeAnalytical = "analytical"
	queryTypeFactual    = "factual"
)

var queryTypeMarkers = []struct {
	queryType string
	markers   []string
}{
	{queryTypeDefinition, []string{"what is", "what are", "define", "meaning of", "explain"}},
	{queryTypeComparison, []string{"compare", "difference between", "vs", "versus", "better than", "worse than"}},
	{queryTypeHowTo, []string{"how to", "how do", "how can", "steps to"}},
	{queryTypeList, []string{"list", "what are the", "enumerate", "give me all"}},
	{queryTypeAnalytical, []string{"why", "analyze", "explain why", "reason"}},
}

// detectQueryType classifies the question shape so the system prompt
// can request a matching answer format.
func detectQueryType(query string) string {
	lower := strings.ToLower(query)
	for _, group := range queryTypeMarkers {
		for _, marker := range group.markers {
			if strings.Contains(lower, marker) {
				return group.queryType
			}
		}
	}
	return queryTypeFactual
}

var basePrompts = map[string]string{
	LangEnglish: "You are a helpful multilingual assistant.",
	LangRussian: "Вы полезный многоязычный помощник.",
	LangUzbek:   "Siz foydali ko'p tilli yordamchisiz.",
}

var expertInstructions = map[string]string{
	LangEnglish: "Provide technical, detailed responses with domain-specific terminology.",
	LangRussian: "Предоставляйте технические, подробные ответы со специализированной терминологией.",
	LangUzbek:   "Texnik, batafsil javoblar bering va maxsus terminologiyadan foydalaning.",
}

var beginnerInstructions = map[string]string{
	LangEnglish: "Explain simply, avoid jargon, and use clear examples.",
	LangRussian: "Объясняйте просто, избегайте жаргона и используйте понятные примеры.",
	LangUzbek:   "Sodda tushuntiring, murakkab atamalardan qoching va aniq misollar keltiring.",
}

var queryTypeInstructions = map[string]map[string]string{
	LangEnglish: {
		queryTypeDefinition: "Provide a clear, concise definition followed by relevant details.",
		queryTypeComparison: "Present a balanced comparison with key differences and similarities.",
		queryTypeHowTo:      "Provide step-by-step instructions in a numbered list format.",
		queryTypeList:       "Present the information as a bulleted or numbered list.",
		queryTypeAnalytical: "Provide a detailed analysis with supporting evidence from the sources.",
		queryTypeFactual:    "Provide accurate, factual information directly answering the question.",
	},
	LangRussian: {
		queryTypeDefinition: "Дайте четкое, краткое определение с последующими деталями.",
		queryTypeComparison: "Представьте сбалансированное сравнение с ключевыми различиями и сходствами.",
		queryTypeHowTo:      "Предоставьте пошаговые инструкции в виде нумерованного списка.",
		queryTypeList:       "Представьте информацию в виде маркированного или нумерованного списка.",
		queryTypeAnalytical: "Предоставьте детальный анализ с подтверждающими доказательствами из источников.",
		queryTypeFactual:    "Предоставьте точную, фактическую информацию, непосредственно отвечающую на вопрос.",
	},
	LangUzbek: {
		queryTypeDefinition: "Aniq, qisqa ta'rif bering va keyin tafsilotlarni qo'shing.",
		queryTypeComparison: "Asosiy farqlar va o'xshashliklar bilan muvozanatli taqqoslash bering.",
		queryTypeHowTo:      "Raqamlangan ro'yxat shaklida qadam-baqadam ko'rsatmalar bering.",
		queryTypeList:       "Ma'lumotni belgilangan yoki raqamlangan ro'yxat sifatida taqdim eting.",
		queryTypeAnalytical: "Manbalardan dalillar bilan batafsil tahlil bering.",
		queryTypeFactual:    "Savolga to'g'ridan-to'g'ri javob beradigan aniq, haqiqiy ma'lumot bering.",
	},
}

var pdfInstructions = map[string]string{
	LangEnglish: "You're analyzing research documents. Provide precise citations with page numbers.",
	LangRussian: "Вы анализируете исследовательские документы. Указывайте точные ссылки с номерами страниц.",
	LangUzbek:   "Siz tadqiqot hujjatlarini tahlil qilyapsiz. Sahifa raqamlari bilan aniq havolalar bering.",
}

var groundingInstructions = map[string]string{
	LangEnglish: "Answer based ONLY on the provided context documents. If the context doesn't contain enough information, say so.",
	LangRussian: "Отвечайте ТОЛЬКО на основе предоставленных контекстных документов. Если контекста недостаточно, укажите это.",
	LangUzbek:   "FAQAT taqdim etilgan kontekst hujjatlari asosida javob bering. Agar kontekst yetarli bo'lmasa, buni ayting.",
}

var citationInstructions = map[string]string{
	LangEnglish: "Include page references when available (e.g., 'according to page 3...').",
	LangRussian: "Включайте ссылки на страницы, когда доступны (например, 'согласно странице 3...').",
	LangUzbek:   "Sahifa havolalarini qo'shing (masalan, '3-sahifaga ko'ra...').",
}

var conciseInstructions = map[string]string{
	LangEnglish: "Keep responses brief and to the point.",
	LangRussian: "Давайте краткие и точные ответы.",
	LangUzbek:   "Javoblarni qisqa va aniq bering.",
}

var detailedInstructions = map[string]string{
	LangEnglish: "Provide comprehensive, detailed explanations.",
	LangRussian: "Предоставляйте всесторонние, подробные объяснения.",
	LangUzbek:   "Keng qamrovli, batafsil tushuntirishlar bering.",
}

func localized(table map[string]string, language string) string {
	if text, ok := table[language]; ok {
		return text
	}
	return table[LangEnglish]
}

// BuildSystemPrompt assembles a generation system prompt adapted to
// the query language, question shape, source document types, and the
// caller's runtime preferences.
func BuildSystemPrompt(query string, documents []Document, rc RuntimeContext) string {
	language := rc.LanguagePreference
	if language == "" || language == "auto" {
		language = DetectLanguage(query)
	}
	queryType := detectQueryType(query)

	parts := []string{localized(basePrompts, language)}

	switch rc.ExpertiseLevel {
	case "expert":
		parts = append(parts, localized(expertInstructions, language))
	case "beginner":
		parts = append(parts, localized(beginnerInstructions, language))
	}

	typeTable, ok := queryTypeInstructions[language]
	if !ok {
		typeTable = queryTypeInstructions[LangEnglish]
	}
	instruction, ok := typeTable[queryType]
	if !ok {
		instruction = queryTypeInstructions[LangEnglish][queryTypeFactual]
	}
	parts = append(parts, instruction)

	if len(documents) > 0 && allPDF(documents) {
		parts = append(parts, localized(pdfInstructions, language))
	}

	parts = append(parts, localized(groundingInstructions, language))

	if rc.EnableCitations {
		parts = append(parts, localized(citationInstructions, language))
	}

	switch rc.ResponseStyle {
	case "concise":
		parts = append(parts, localized(conciseInstructions, language))
	case "detailed":
		parts = append(parts, localized(detailedInstructions, language))
	}

	return strings.Join(parts, " ")
}

func allPDF(documents []Document) bool {
	for _, doc := range documents {
		source, _ := doc.Metadata["source"].(string)
		idx := strings.LastIndex(source, ".")
		if idx < 0 || !strings.EqualFold(source[idx+1:], "pdf") {
			return false
		}
	}
	return true
}
