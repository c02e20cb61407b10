package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reIdentifierJunk  = regexp.MustCompile(`[^A-Za-z0-9_\-.:]+`)
	reTrimUnderscores = regexp.MustCompile(`_+`)
)

// TrimAndNormalize trims s and collapses inner whitespace runs to one space.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		result.WriteRune(r)
		lastWasSpace = false
	}
	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizeIdentifier keeps letters, digits and _-.: and replaces any other
// run with a single underscore. Case is preserved.
func NormalizeIdentifier(id string) string {
	p := Pipeline{
		strings.TrimSpace,
		func(s string) string { return reIdentifierJunk.ReplaceAllString(s, "_") },
		func(s string) string { return reTrimUnderscores.ReplaceAllString(s, "_") },
		func(s string) string { return strings.Trim(s, "_") },
	}
	return p.Apply(id)
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeSlice applies strategy to every item and drops empties and
// duplicates, keeping first-seen order.
func NormalizeSlice(items []string, strategy Strategy) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strategy(item)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func NormalizeIdentifiers(ids []string) []string {
	return NormalizeSlice(ids, NormalizeIdentifier)
}
