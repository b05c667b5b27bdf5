package conversion

import (
	"fmt"
	"regexp"
	"strconv"
)

var trailingDigitsRe = regexp.MustCompile(`^(.*?)(\d+)$`)

// NextNumber increments the trailing numeric run of a document number,
// preserving the prefix and zero padding. It returns false when the
// number carries no numeric suffix and a sequence fallback is needed.
func NextNumber(previous string) (string, bool) {
	m := trailingDigitsRe.FindStringSubmatch(previous)
	if m == nil {
		return "", false
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s%0*d", m[1], len(m[2]), n+1), true
}
