package relnotes

import (
	"strconv"
	"strings"
)

// CompareLoose orders version strings the way loose version sorting does:
// dotted components compare numerically when both sides are numbers, lexically
// otherwise, and a version is smaller than any longer version it prefixes
// ("14.0.0" < "14.0.0rc1", which fixTagOrder later corrects for release
// ordering).
func CompareLoose(a, b string) int {
	as, bs := tokenize(a), tokenize(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		aNum, bNum := aErr == nil, bErr == nil
		switch {
		case aNum && bNum:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case aNum:
			return -1
		case bNum:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return len(as) - len(bs)
}

// tokenize splits a version into numeric and alphabetic runs: "14.0.0rc1"
// becomes [14 0 0 rc 1].
func tokenize(v string) []string {
	var tokens []string
	var current strings.Builder
	var numeric bool

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, c := range v {
		switch {
		case c == '.' || c == '-' || c == '_':
			flush()
		case c >= '0' && c <= '9':
			if current.Len() > 0 && !numeric {
				flush()
			}
			numeric = true
			current.WriteRune(c)
		default:
			if current.Len() > 0 && numeric {
				flush()
			}
			numeric = false
			current.WriteRune(c)
		}
	}
	flush()
	return tokens
}
