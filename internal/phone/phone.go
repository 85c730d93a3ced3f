// Package phone canonicalizes phone numbers so that the PBX's and the
// CRM's differing formats compare equal. The rules are deliberately
// explicit: a silent formatting mismatch does not fail loudly, it just
// breaks ticket linkage.
package phone

import "strings"

// suffixLen is the number of trailing digits that identify a line once
// the country prefix is stripped (national significant number for most
// European plans).
const suffixLen = 9

// minMatchDigits guards short internal extensions: anything shorter
// only matches on exact canonical equality, never by suffix.
const minMatchDigits = 6

// Canonical strips every non-digit character and a leading
// international "00" prefix. "+33 6 11 11 22 22" -> "33611112222",
// "0033611112222" -> "33611112222", "06-11-11-22-22" -> "0611112222".
func Canonical(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 2 && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	return digits
}

// Match reports whether two numbers designate the same line: equal
// canonical forms, or equal trailing digits when both are long enough
// to carry a national significant number. This makes "+33611112222"
// and "0611112222" match without a full numbering-plan database.
func Match(a, b string) bool {
	ca, cb := Canonical(a), Canonical(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb {
		return true
	}
	if len(ca) < minMatchDigits || len(cb) < minMatchDigits {
		return false
	}
	return suffix(ca) == suffix(cb)
}

// SearchDigits returns the canonical trailing digits used as the lookup
// key against the CRM directory.
func SearchDigits(s string) string {
	return suffix(Canonical(s))
}

func suffix(digits string) string {
	if len(digits) <= suffixLen {
		return digits
	}
	return digits[len(digits)-suffixLen:]
}
