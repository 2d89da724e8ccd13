package extract

import (
	"regexp"
	"strings"
)

var (
	modelHintCoreRe = regexp.MustCompile(`\b(Core)\s+([A-Z0-9-]{3,})\b`)
	modelHintCodeRe = regexp.MustCompile(`\b[A-Z]+[0-9]{2,}[A-Z0-9-]*\b`)
	airPurifiersRe  = regexp.MustCompile(`\bAir Purifiers\b`)
)

// NormalizeProductName implements spec.md §4.7: strip trailing clauses
// introduced by " with "/" for "/",", rewrite known plural quirks, and
// append a disambiguating model hint extracted from the original text when
// it isn't already present in the trimmed name.
func NormalizeProductName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return name
	}

	cut := len(name)
	for _, sep := range []string{" with ", " for ", ","} {
		if idx := strings.Index(strings.ToLower(name), sep); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	trimmed := strings.TrimSpace(name[:cut])

	trimmed = airPurifiersRe.ReplaceAllString(trimmed, "Air Purifier")

	modelHint := lastModelHint(name)
	if modelHint != "" && !strings.Contains(trimmed, modelHint) {
		stripped := strings.TrimSuffix(modelHint, "-P")
		trimmed = trimmed + " - " + stripped
	}

	return trimmed
}

func lastModelHint(text string) string {
	type match struct {
		start int
		text  string
	}
	var matches []match

	for _, idx := range modelHintCoreRe.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, match{start: idx[0], text: text[idx[2]:idx[3]] + " " + text[idx[4]:idx[5]]})
	}
	for _, idx := range modelHintCodeRe.FindAllStringIndex(text, -1) {
		matches = append(matches, match{start: idx[0], text: text[idx[0]:idx[1]]})
	}
	if len(matches) == 0 {
		return ""
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.start >= best.start {
			best = m
		}
	}
	return best.text
}
