package ezo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// FormatFixed renders v right aligned in width with prec decimals, for column aligned logs.
func FormatFixed(v float64, width, prec int) string {
	return fmt.Sprintf("%*.*f", width, prec, v)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.NotValidf("number %q", s)
	}
	return f, nil
}

func parseInt(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NotValidf("integer %q", s)
	}
	return i, nil
}

// tag compares reply tags like "?O" case insensitive.
func tag(token, expect string) bool { return strings.EqualFold(token, expect) }
