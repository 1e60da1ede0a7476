package agent

import (
	"math"
	"regexp"
	"strings"
)

var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`i don't know`),
	regexp.MustCompile(`i cannot answer`),
	regexp.MustCompile(`no information`),
	regexp.MustCompile(`not enough information`),
	regexp.MustCompile(`unable to answer`),
	regexp.MustCompile(`i don't have.*information`),
}

var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[\d+\]`),
	regexp.MustCompile(`\(page \d+\)`),
	regexp.MustCompile(`\(pages \d+-\d+\)`),
	regexp.MustCompile(`according to`),
	regexp.MustCompile(`as stated in`),
	regexp.MustCompile(`the document mentions`),
	regexp.MustCompile(`page \d+ states`),
}

var strongNegations = []*regexp.Regexp{
	regexp.MustCompile(`\bnot\b`),
	regexp.MustCompile(`\bno\b`),
	regexp.MustCompile(`\bnever\b`),
	regexp.MustCompile(`\bdoes not\b`),
	regexp.MustCompile(`\bcannot\b`),
	regexp.MustCompile(`\bimpossible\b`),
}

var (
	overlapWordRe  = regexp.MustCompile(`\b[\p{L}\p{N}_]{4,}\b`)
	negationWordRe = regexp.MustCompile(`\b[\p{L}\p{N}_]{5,}\b`)
)

// ValidateGeneration scores a generated answer against its source
// documents: overlap-based confidence, generic-answer detection,
// citation presence, and a basic contradiction heuristic.
func ValidateGeneration(response string, documents []Document, query string) *ValidationResult {
	if len(strings.TrimSpace(response)) < 10 {
		return &ValidationResult{
			Generation:       response,
			Confidence:       0.0,
			IsGeneric:        true,
			HasCitations:     false,
			ValidationPassed: false,
			Warnings:         []string{"Response too short or empty"},
		}
	}

	var warnings []string
	lower := strings.ToLower(response)

	isGeneric := false
	for _, pattern := range genericPatterns {
		if pattern.MatchString(lower) {
			isGeneric = true
			break
		}
	}
	if isGeneric {
		warnings = append(warnings, "Response appears generic or non-committal")
	}

	confidence := overlapConfidence(response, documents)

	hasCitations := HasCitations(response)
	if !hasCitations && len(documents) > 0 {
		warnings = append(warnings, "No citations found despite having source documents")
	}

	contradicts := detectContradictions(response, documents)
	if contradicts {
		warnings = append(warnings, "Response may contradict source documents")
	}

	passed := confidence > 0.3 &&
		!contradicts &&
		(hasCitations || len(documents) == 0)

	return &ValidationResult{
		Generation:         response,
		Confidence:         confidence,
		IsGeneric:          isGeneric,
		HasCitations:       hasCitations,
		ContradictsSources: contradicts,
		ValidationPassed:   passed,
		Warnings:           warnings,
	}
}

// overlapConfidence measures how much of the answer's vocabulary
// appears in the source documents. A 30% overlap or more maps to full
// confidence.
func overlapConfidence(response string, documents []Document) float64 {
	if len(documents) == 0 {
		// No documents means grounding cannot be verified either way.
		return 0.5
	}

	responseWords := wordSet(overlapWordRe, response)
	if len(responseWords) == 0 {
		return 0.0
	}

	var docText strings.Builder
	for _, doc := range documents {
		docText.WriteString(doc.Text)
		docText.WriteString(" ")
	}
	docWords := wordSet(overlapWordRe, docText.String())
	if len(docWords) == 0 {
		return 0.0
	}

	overlap := 0
	for word := range responseWords {
		if docWords[word] {
			overlap++
		}
	}

	ratio := float64(overlap) / float64(len(responseWords))
	confidence := math.Min(ratio/0.3, 1.0)
	return math.Round(confidence*100) / 100
}

// HasCitations reports whether the answer references its sources.
func HasCitations(response string) bool {
	lower := strings.ToLower(response)
	for _, pattern := range citationPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}

// detectContradictions flags answers that assert strong negations
// while sharing almost no vocabulary with the sources.
func detectContradictions(response string, documents []Document) bool {
	lower := strings.ToLower(response)

	hasNegation := false
	for _, pattern := range strongNegations {
		if pattern.MatchString(lower) {
			hasNegation = true
			break
		}
	}
	if !hasNegation || len(documents) == 0 {
		return false
	}

	var docText strings.Builder
	for _, doc := range documents {
		docText.WriteString(strings.ToLower(doc.Text))
		docText.WriteString(" ")
	}

	responseWords := wordSet(negationWordRe, lower)
	docWords := wordSet(negationWordRe, docText.String())
	if len(responseWords) == 0 || len(docWords) == 0 {
		return false
	}

	overlap := 0
	for word := range responseWords {
		if docWords[word] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(responseWords)) < 0.1
}

func wordSet(re *regexp.Regexp, text string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range re.FindAllString(strings.ToLower(text), -1) {
		words[word] = true
	}
	return words
}
