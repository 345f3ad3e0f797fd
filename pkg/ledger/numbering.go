package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultAccountPrefix is the business key prefix, as in "AZH-001".
const DefaultAccountPrefix = "AZH"

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// NextAccountNumber returns prefix-NNN where NNN is one more than the largest
// numeric suffix among existing keys. Keys that do not match count as zero.
func NextAccountNumber(prefix string, existing []string) string {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+)$`)
	max := 0
	for _, key := range existing {
		m := pattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return FormatAccountNumber(prefix, max+1)
}

// FormatAccountNumber zero-pads n to at least three digits.
func FormatAccountNumber(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// ValidAccountNumber reports whether key has the form prefix-digits.
func ValidAccountNumber(prefix, key string) bool {
	rest, ok := strings.CutPrefix(key, prefix+"-")
	if !ok || len(rest) < 3 {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateMobile accepts an empty string or exactly ten digits.
func ValidateMobile(mobile string) error {
	if mobile == "" || mobilePattern.MatchString(mobile) {
		return nil
	}
	return invalid("mobile", "must be a 10-digit number")
}

// ValidateName requires a non-blank name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "must not be empty")
	}
	return nil
}
