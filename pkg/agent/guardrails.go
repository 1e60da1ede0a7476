package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// GuardrailViolation rejects a request or response outright.
type GuardrailViolation struct {
	Reason string
}

func (e *GuardrailViolation) Error() string {
	return e.Reason
}

// InputCheck is the outcome of input validation. MaskedQuery differs
// from the original when PII was found.
type InputCheck struct {
	OriginalQuery string
	MaskedQuery   string
	Warnings      []string
	PIIMasked     bool
}

// OutputCheck is the outcome of output validation.
type OutputCheck struct {
	Response   string
	Confidence float64
	Warnings   []string
	Passed     bool
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore\s+(all\s+)?(previous|above|prior)\s+(instructions|prompts|commands)`),
	regexp.MustCompile(`disregard\s+(all\s+)?(previous|above|prior)`),
	regexp.MustCompile(`forget\s+(all\s+)?(previous|above|prior)`),
	regexp.MustCompile(`new\s+instructions?:`),
	regexp.MustCompile(`system\s*:`),
	regexp.MustCompile(`assistant\s*:`),
	regexp.MustCompile(`###\s*instruction`),
	regexp.MustCompile(`you\s+are\s+now`),
	regexp.MustCompile(`pretend\s+to\s+be`),
	regexp.MustCompile(`roleplay\s+as`),
	regexp.MustCompile(`jailbreak`),
	regexp.MustCompile(`dan\s+mode`),
	regexp.MustCompile(`developer\s+mode`),
	regexp.MustCompile(`what\s+(are|is)\s+your\s+(system\s+)?(prompt|instructions)`),
	regexp.MustCompile(`show\s+me\s+your\s+(system\s+)?(prompt|instructions)`),
	regexp.MustCompile(`repeat\s+(your\s+)?(system\s+)?(prompt|instructions)`),
}

// "act as X" is suspicious for any role except "assistant".
var actAsRe = regexp.MustCompile(`act\s+as\s+(?:a\s+)?(\w+)`)

// Non-word characters beyond normal punctuation. Unicode letters and
// digits count as word characters so Cyrillic text is not penalized.
var specialCharRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?'"-]`)

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*drop\s+table`),
	regexp.MustCompile(`;\s*delete\s+from`),
	regexp.MustCompile(`union\s+select`),
	regexp.MustCompile(`1\s*=\s*1`),
	regexp.MustCompile(`'\s*or\s*'1'\s*=\s*'1`),
}

var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*rm\s+-rf`),
	regexp.MustCompile(`&&\s*rm\s+`),
	regexp.MustCompile(`\|\s*bash`),
	regexp.MustCompile("`.*`"),
	regexp.MustCompile(`\$\(.*\)`),
}

var leakagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`system\s+prompt`),
	regexp.MustCompile(`my\s+instructions\s+(are|were)`),
	regexp.MustCompile(`i\s+was\s+told\s+to`),
	regexp.MustCompile(`qdrant`),
	regexp.MustCompile(`anthropic`),
	regexp.MustCompile(`openai`),
	regexp.MustCompile(`api\s+key`),
	regexp.MustCompile(`secret\s+key`),
	regexp.MustCompile(`password`),
}

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
		regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.]?\d{4}\b`),
		regexp.MustCompile(`\+\d{1,3}\s?\d{9,}\b`),
	}
	creditCardRe = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ipRe         = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
)

// ValidateInput screens a query before any processing. It rejects
// empty, oversized, injection-laden, or malicious inputs and masks PII
// in everything else.
func ValidateInput(query string, maxLength int) (*InputCheck, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &GuardrailViolation{Reason: "Query cannot be empty"}
	}
	if len(query) > maxLength {
		return nil, &GuardrailViolation{
			Reason: fmt.Sprintf("Query too long (max %d characters, got %d)", maxLength, len(query)),
		}
	}
	if DetectPromptInjection(query) {
		return nil, &GuardrailViolation{
			Reason: "Potential prompt injection detected. Please rephrase your question.",
		}
	}

	var warnings []string
	piiFound, masked := MaskPII(query)
	if piiFound {
		warnings = append(warnings, "PII detected and masked in query")
	}

	if DetectMaliciousPatterns(query) {
		return nil, &GuardrailViolation{
			Reason: "Query contains potentially harmful content. Please rephrase your question.",
		}
	}

	return &InputCheck{
		OriginalQuery: query,
		MaskedQuery:   masked,
		Warnings:      warnings,
		PIIMasked:     piiFound,
	}, nil
}

// DetectPromptInjection reports whether text looks like an attempt to
// override the system prompt.
func DetectPromptInjection(text string) bool {
	lower := strings.ToLower(text)

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	for _, match := range actAsRe.FindAllStringSubmatch(lower, -1) {
		if match[1] != "assistant" {
			return true
		}
	}

	runes := []rune(text)
	if len(runes) > 0 {
		special := len(specialCharRe.FindAllString(text, -1))
		if float64(special)/float64(len(runes)) > 0.4 {
			return true
		}
	}
	return false
}

// MaskPII replaces emails, phone numbers, card numbers, SSNs, and IP
// addresses with placeholder tags.
func MaskPII(text string) (bool, string) {
	found := false
	masked := text

	if emailRe.MatchString(masked) {
		masked = emailRe.ReplaceAllString(masked, "[EMAIL]")
		found = true
	}
	for _, re := range phoneRe {
		if re.MatchString(masked) {
			masked = re.ReplaceAllString(masked, "[PHONE]")
			found = true
		}
	}
	if creditCardRe.MatchString(masked) {
		masked = creditCardRe.ReplaceAllString(masked, "[CREDIT_CARD]")
		found = true
	}
	if ssnRe.MatchString(masked) {
		masked = ssnRe.ReplaceAllString(masked, "[SSN]")
		found = true
	}

	// Only mask dotted quads with valid octets so version strings and
	// dates survive.
	for _, candidate := range ipRe.FindAllString(masked, -1) {
		if isValidIP(candidate) {
			masked = strings.ReplaceAll(masked, candidate, "[IP_ADDRESS]")
			found = true
		}
	}

	return found, masked
}

func isValidIP(candidate string) bool {
	for _, part := range strings.Split(candidate, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// DetectMaliciousPatterns reports SQL or shell injection attempts.
func DetectMaliciousPatterns(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range sqlPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	for _, pattern := range commandPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// ValidateOutput screens a generated answer before it reaches the
// user. In strict mode, low-confidence answers are rejected.
func ValidateOutput(response string, validation *ValidationResult, strict bool) (*OutputCheck, error) {
	warnings := append([]string{}, validation.Warnings...)

	if strict && validation.Confidence < 0.3 {
		return nil, &GuardrailViolation{
			Reason: "Response confidence too low. Unable to generate reliable answer from available sources.",
		}
	}

	piiFound, masked := MaskPII(response)
	if piiFound {
		warnings = append(warnings, "PII detected and masked in response")
		response = masked
	}

	if DetectDataLeakage(response) {
		return nil, &GuardrailViolation{
			Reason: "Response contains potentially sensitive system information",
		}
	}

	return &OutputCheck{
		Response:   response,
		Confidence: validation.Confidence,
		Warnings:   warnings,
		Passed:     validation.ValidationPassed,
	}, nil
}

// DetectDataLeakage reports whether a response exposes internal system
// details such as prompts, infrastructure names, or credentials.
func DetectDataLeakage(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range leakagePatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}
