package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	underRE   = regexp.MustCompile(`(?i)\bunder\s+\$?(\d+(?:\.\d+)?)`)
	belowRE   = regexp.MustCompile(`(?i)\bbelow\s+\$?(\d+(?:\.\d+)?)`)
	aboveRE   = regexp.MustCompile(`(?i)\b(?:above|over)\s+\$?(\d+(?:\.\d+)?)`)
	betweenRE = regexp.MustCompile(`(?i)\bbetween\s+\$?(\d+(?:\.\d+)?)\s+and\s+\$?(\d+(?:\.\d+)?)`)
	lessEqRE  = regexp.MustCompile(`(?i)\b(?:less than|at most|no more than)\s+\$?(\d+(?:\.\d+)?)`)
)

// ParseFilter recognizes common price-constraint phrasings in free-text
// instructions: "under X", "below X", "above X", "over X", "between X and
// Y" (spec.md §4.4 step 8 "a lightweight parser recognizes ... criteria").
// An instruction with no recognized phrasing yields a zero Filter that
// passes every product through.
func ParseFilter(instruction string) Filter {
	var f Filter

	if m := betweenRE.FindStringSubmatch(instruction); m != nil {
		lo, loErr := strconv.ParseFloat(m[1], 64)
		hi, hiErr := strconv.ParseFloat(m[2], 64)
		if loErr == nil && hiErr == nil {
			f.Above = &lo
			f.Under = &hi
			f.Currency = currencyHint(instruction)
			return f
		}
	}
	if m := underRE.FindStringSubmatch(instruction); m != nil {
		setUnder(&f, m[1])
	} else if m := belowRE.FindStringSubmatch(instruction); m != nil {
		setUnder(&f, m[1])
	} else if m := lessEqRE.FindStringSubmatch(instruction); m != nil {
		setUnder(&f, m[1])
	}
	if m := aboveRE.FindStringSubmatch(instruction); m != nil {
		setAbove(&f, m[1])
	}
	f.Currency = currencyHint(instruction)
	return f
}

func setUnder(f *Filter, s string) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.Under = &v
	}
}

func setAbove(f *Filter, s string) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.Above = &v
	}
}

func currencyHint(instruction string) string {
	lower := strings.ToLower(instruction)
	switch {
	case strings.Contains(lower, "eur") || strings.Contains(instruction, "€"):
		return "EUR"
	case strings.Contains(lower, "gbp") || strings.Contains(instruction, "£"):
		return "GBP"
	case strings.Contains(lower, "pln") || strings.Contains(instruction, "zł"):
		return "PLN"
	case strings.Contains(lower, "usd") || strings.Contains(instruction, "$"):
		return "USD"
	default:
		return ""
	}
}
