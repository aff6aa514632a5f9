// Package comparator implements the fixed suite of field comparators.
// Every comparator returns a score in [0, 1]; a missing value on either
// side always disagrees (score 0), never "agrees by default".
package comparator

import (
	"strings"
	"unicode"

	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/xrash/smetrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func compares two attribute values and returns a similarity in [0, 1].
type Func func(a, b string) float64

// Registry is the fixed tagged union of comparators the engine dispatches
// on at plan-compile time.
var Registry = map[string]Func{
	"exact":        Exact,
	"jaro_winkler": JaroWinkler,
	"email":        Email,
	"phone":        Phone,
	"name":         Name,
	"company":      Company,
}

// Compare looks up comparatorName in Registry and applies it, treating
// either value being record.Missing as automatic disagreement.
func Compare(comparatorName, a, b string) float64 {
	if a == record.Missing || b == record.Missing {
		return 0
	}
	fn, ok := Registry[comparatorName]
	if !ok {
		return 0
	}
	return fn(a, b)
}

// Exact reports 1 if a and b are identical after Unicode case-folding, 0
// otherwise.
func Exact(a, b string) float64 {
	if foldCase(a) == foldCase(b) {
		return 1
	}
	return 0
}

// JaroWinkler computes the Jaro-Winkler similarity between normalized a and
// b, the general-purpose string-similarity comparator.
func JaroWinkler(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return 1
	}
	return smetrics.JaroWinkler(na, nb, 0.7, 4)
}

// nicknames maps common given-name nicknames to a canonical form so "Bob"
// and "Robert" agree under Name.
var nicknames = map[string]string{
	"bob": "robert", "rob": "robert", "bobby": "robert",
	"bill": "william", "will": "william", "billy": "william", "liam": "william",
	"dick": "richard", "rich": "richard", "rick": "richard",
	"jim": "james", "jimmy": "james",
	"mike": "michael", "mikey": "michael",
	"beth": "elizabeth", "liz": "elizabeth", "eliza": "elizabeth", "betty": "elizabeth",
	"kate": "katherine", "kathy": "katherine", "katie": "katherine",
	"tom": "thomas", "tommy": "thomas",
	"alex": "alexander",
	"dave": "david",
	"steve": "steven",
	"chris": "christopher",
	"nick": "nicholas",
	"sam": "samuel",
	"joe": "joseph",
	"andy": "andrew", "drew": "andrew",
	"ted": "edward", "ed": "edward", "eddie": "edward",
	"peggy": "margaret", "meg": "margaret", "maggie": "margaret",
}

// Name compares given/family names: exact match after nickname resolution
// scores 1, otherwise falls back to JaroWinkler on the normalized strings.
func Name(a, b string) float64 {
	na, nb := canonicalizeName(normalize(a)), canonicalizeName(normalize(b))
	if na == nb {
		return 1
	}
	return smetrics.JaroWinkler(na, nb, 0.7, 4)
}

func canonicalizeName(s string) string {
	if canon, ok := nicknames[s]; ok {
		return canon
	}
	return s
}

// companySuffixes are stripped before comparing organization names so
// "Acme Inc" and "Acme Incorporated" agree.
var companySuffixes = []string{
	" incorporated", " inc", " corporation", " corp", " company", " co",
	" limited", " ltd", " llc", " l.l.c.", " plc", " gmbh", " sa", " ag",
}

// Company compares organization names after normalizing whitespace,
// stripping a legal-entity suffix, and trimming the dots and commas left
// around it.
func Company(a, b string) float64 {
	na, nb := stripCompanySuffix(normalize(a)), stripCompanySuffix(normalize(b))
	if na == nb {
		return 1
	}
	return smetrics.JaroWinkler(na, nb, 0.7, 4)
}

func stripCompanySuffix(s string) string {
	s = strings.TrimRight(s, ".")
	for _, suffix := range companySuffixes {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSpace(strings.TrimRight(strings.TrimSuffix(s, suffix), " ,"))
		}
	}
	return strings.TrimSpace(s)
}

// emailAliasDomains maps a domain to the canonical domain it is an alias
// of, so e.g. "googlemail.com" agrees with "gmail.com" and "live.com"
// agrees with "outlook.com".
var emailAliasDomains = map[string]string{
	"googlemail.com": "gmail.com",
	"live.com":       "outlook.com",
}

// Email compares two email addresses: the domain is alias-resolved and
// case-folded, the local part is case-folded and has a "+tag" suffix
// stripped before comparison. On gmail.com addresses, dots in the local
// part are also collapsed, since Gmail ignores them.
func Email(a, b string) float64 {
	la, da := splitEmail(a)
	lb, db := splitEmail(b)
	if la == "" || lb == "" {
		return 0
	}
	if la == lb && da == db {
		return 1
	}
	return 0
}

func splitEmail(v string) (local, domain string) {
	v = foldCase(strings.TrimSpace(v))
	idx := strings.LastIndex(v, "@")
	if idx < 0 {
		return "", ""
	}
	local, domain = v[:idx], v[idx+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if canon, ok := emailAliasDomains[domain]; ok {
		domain = canon
	}
	if domain == "gmail.com" {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local, domain
}

// Phone compares two phone numbers after stripping everything but digits
// and normalizing away a leading country-code "1" for 11-digit US numbers.
func Phone(a, b string) float64 {
	da, db := normalizePhoneDigits(a), normalizePhoneDigits(b)
	if da == "" || db == "" {
		return 0
	}
	if da == db {
		return 1
	}
	return 0
}

func normalizePhoneDigits(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

func foldCase(s string) string {
	return cases.Fold().String(s)
}

// normalize applies NFKC normalization, case-folding, and whitespace
// collapse — the Unicode pre-pass every string comparator shares.
func normalize(s string) string {
	t := transform.Chain(norm.NFKC, runes.Remove(runes.In(unicode.Cf)), cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}
