package podcast

import (
	"regexp"
	"strings"
)

const (
	maxSlugLength        = 50
	descriptionMaxLength = 200

	// LLMFlatCostUSD approximates one script plus one description call.
	LLMFlatCostUSD = 0.03
)

// TTSCostPerMillionChars is the provider rate used for cost estimates.
var TTSCostPerMillionChars = map[TTSProvider]float64{
	TTSDeepInfra: 0.62,
	TTSInference: 1.0,
	TTSOpenAI:    15.0,
	TTSMock:      0,
}

var reNonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title and collapses every run of non-alphanumerics into
// a single hyphen, truncated to 50 characters.
func Slugify(title string) string {
	s := reNonSlug.ReplaceAllString(strings.ToLower(title), "-")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "episode"
	}
	return s
}

// WordCount sums whitespace-separated tokens over all lines.
func WordCount(lines []ScriptLine) int {
	n := 0
	for _, l := range lines {
		n += len(strings.Fields(l.Text))
	}
	return n
}

// CharCount sums the text length of all lines, the unit providers bill by.
func CharCount(lines []ScriptLine) int {
	n := 0
	for _, l := range lines {
		n += len(l.Text)
	}
	return n
}

// EstimateCost returns the USD estimate for synthesizing chars characters
// with provider plus the flat script-generation cost.
func EstimateCost(provider TTSProvider, chars int) float64 {
	rate, ok := TTSCostPerMillionChars[provider]
	if !ok {
		rate = 1.0
	}
	return float64(chars)/1_000_000*rate + LLMFlatCostUSD
}

// ReadableTranscript renders lines as "Name: text" blocks separated by a blank line.
func ReadableTranscript(lines []ScriptLine, voices Voices) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, voices.NameFor(l.Speaker)+": "+l.Text)
	}
	return strings.Join(parts, "\n\n")
}

// FallbackDescription is used when no generated description is available:
// the first 200 characters of text, with an ellipsis when truncated.
func FallbackDescription(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(text)
	if len(runes) < descriptionMaxLength {
		return text
	}
	return strings.TrimSpace(string(runes[:descriptionMaxLength])) + "..."
}

// JoinText concatenates all line texts with single spaces.
func JoinText(lines []ScriptLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, " ")
}
