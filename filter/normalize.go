package filter

import (
	"strconv"
	"strings"
	"unicode"
)

var (
	preKindergarten = map[string]bool{"PK": true, "P": true, "PRE-K": true, "PREK": true, "PRE-KINDERGARTEN": true, "-1": true}
	kindergarten    = map[string]bool{"K": true, "KG": true, "KINDERGARTEN": true, "0": true}
)

const (
	GradePK = "-1"
	GradeK  = "0"
)

// NormalizeGrade maps a grade spelling to its canonical token: "-1" for
// pre-kindergarten, "0" for kindergarten, otherwise the first digit run
// without leading zeros. Tokens with no digits pass through trimmed and
// uppercased.
func NormalizeGrade(value string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	if preKindergarten[v] {
		return GradePK
	}
	if kindergarten[v] {
		return GradeK
	}
	run := digitRun(v)
	if run == "" {
		return v
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return run
	}
	return strconv.Itoa(n)
}

// GradeLevel is the numeric form of a canonical grade token.
func GradeLevel(value string) (int, bool) {
	n, err := strconv.Atoi(NormalizeGrade(value))
	if err != nil {
		return 0, false
	}
	return n, true
}

// GradeLabel is the display label of a canonical grade token.
func GradeLabel(token string) string {
	switch token {
	case GradePK:
		return "PK"
	case GradeK:
		return "K"
	}
	return token
}

// GradeLess orders canonical tokens PK, K, 1..12, then non-numeric tokens
// alphabetically.
func GradeLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// NormalizeDistrict strips a leading non-digit prefix ("D07" -> "07") so codes
// and prefixed spellings compare equal. Codes without a prefix are trimmed.
func NormalizeDistrict(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if unicode.IsDigit(rune(v[0])) {
		return v
	}
	return digitRun(v)
}

// NormalizeName is the fallback key used when no code column exists.
func NormalizeName(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// SchoolToken extracts the location id from a composite "<prefix>-<location>"
// token, where location is numeric. Other values, including location ids that
// carry a hyphen themselves, are returned trimmed. A composite with nothing
// after the hyphen yields "".
func SchoolToken(value string) string {
	v := strings.TrimSpace(value)
	i := strings.LastIndex(v, "-")
	if i <= 0 {
		return v
	}
	suffix := strings.TrimSpace(v[i+1:])
	if suffix == "" {
		return ""
	}
	if digitRun(suffix) != suffix {
		return v
	}
	return suffix
}

func digitRun(v string) string {
	start := -1
	for i, c := range v {
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return v[start:i]
		}
	}
	if start >= 0 {
		return v[start:]
	}
	return ""
}
