package resolve

import "strings"

// insignificantTokens lists legal-form suffixes and conjunctions that are
// dropped on the first search retry. Matching is case-insensitive and
// token-wise, so "Telia Group" is unchanged while "Volvo Cars AB" becomes
// "volvo cars".
var insignificantTokens = map[string]bool{
	"ab":      true,
	"asa":     true,
	"oyj":     true,
	"a/s":     true,
	"inc":     true,
	"inc.":    true,
	"ltd":     true,
	"ltd.":    true,
	"plc":     true,
	"llc":     true,
	"corp":    true,
	"corp.":   true,
	"gmbh":    true,
	"sa":      true,
	"nv":      true,
	"and":     true,
	"och":     true,
	"&":       true,
	"the":     true,
	"of":      true,
	"holding": true,
}

// StripInsignificant lowercases the name and removes insignificant tokens.
func StripInsignificant(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if insignificantTokens[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// DropLastToken removes the final whitespace-delimited token, narrowing
// the query. Returns "" when one or zero tokens remain.
func DropLastToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) <= 1 {
		return ""
	}
	return strings.Join(fields[:len(fields)-1], " ")
}
