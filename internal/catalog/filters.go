// Package catalog implements posting search for students: filter
// normalization, display formatting and the favorite/hidden markers.
package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jonathan/internship-portal/internal/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces    = regexp.MustCompile(`\s+`)
	reQueryJunk = regexp.MustCompile(`[%*(),"]`)
	reBullets   = regexp.MustCompile(`\r?\n|•|- `)
)

// Normalize lowercases s, strips diacritics and collapses whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(folded, " "))
}

// ModalityFromUI maps a filter label such as "Híbrida" to the stored value.
// Unknown labels return "" meaning no modality filter.
func ModalityFromUI(label string) string {
	switch Normalize(label) {
	case "presencial":
		return types.ModalityOnSite
	case "hibrida", "hibrido":
		return types.ModalityHybrid
	case "remota", "remoto":
		return types.ModalityRemote
	}
	return ""
}

var modalityLabels = map[string]string{
	types.ModalityOnSite: "Presencial",
	types.ModalityHybrid: "Híbrida",
	types.ModalityRemote: "Remota",
}

// FormatModality returns the display label for a stored modality.
func FormatModality(stored string) string {
	if label, ok := modalityLabels[stored]; ok {
		return label
	}
	if stored == "" {
		return "Modalidad N/A"
	}
	return stored
}

// Compensation spellings found in stored vacancies.
var (
	paidVariants   = []string{"apoyo_economico", "apoyo economico", "Apoyo económico", "apoyo económico", "APOYO ECONOMICO"}
	unpaidVariants = []string{"sin_apoyo", "sin apoyo", "Sin apoyo", "SIN APOYO"}
)

// CompensationVariants returns every stored spelling matching the filter
// label, or nil when the label selects nothing.
func CompensationVariants(label string) []string {
	switch Normalize(label) {
	case "apoyo economico":
		return append([]string(nil), paidVariants...)
	case "sin apoyo":
		return append([]string(nil), unpaidVariants...)
	}
	return nil
}

// FormatCompensation returns the display label for a stored compensation.
func FormatCompensation(stored string) string {
	switch stored {
	case "apoyo_economico", "Apoyo económico":
		return "Apoyo económico"
	case "sin_apoyo", "Sin apoyo":
		return "Sin apoyo"
	case "":
		return "Compensación N/A"
	}
	return stored
}

// SanitizeQuery removes characters with meaning in LIKE patterns and filter lists.
func SanitizeQuery(q string) string {
	return strings.TrimSpace(reQueryJunk.ReplaceAllString(q, " "))
}

// SplitLines breaks a free-text activities or requirements field into
// bullet lines on newlines, "•" and "- ".
func SplitLines(text string) []string {
	var out []string
	for _, part := range reBullets.Split(text, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"No disponible"}
	}
	return out
}

var initialsStopWords = map[string]bool{
	"de": true, "del": true, "la": true, "las": true,
	"el": true, "los": true, "the": true, "of": true,
}

// Initials returns the logo fallback for a company name: the first two
// letters of a single word, or the first letters of the first and last
// significant words.
func Initials(name string) string {
	var words []string
	for _, w := range strings.Fields(name) {
		if !initialsStopWords[strings.ToLower(w)] {
			words = append(words, w)
		}
	}
	switch len(words) {
	case 0:
		return "?"
	case 1:
		r := []rune(words[0])
		if len(r) > 2 {
			r = r[:2]
		}
		return strings.ToUpper(string(r))
	}
	first := []rune(words[0])[0]
	last := []rune(words[len(words)-1])[0]
	return strings.ToUpper(string([]rune{first, last}))
}
