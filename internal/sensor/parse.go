package sensor

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCurrency converts "$1,000,000" to 1000000. Cents are not expected on
// prize pages; a fractional value is an extraction error.
func ParseCurrency(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty currency value %q", s)
	}
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse currency %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative currency %q", s)
	}
	return v, nil
}

// ParseOdds converts "1 in 1,469,394" or "1,469,394" to the odds
// denominator.
func ParseOdds(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "1 in ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty odds value %q", s)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse odds %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative odds %q", s)
	}
	return v, nil
}

// ParseCount converts "4,500" to 4500.
func ParseCount(s string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty count value %q", s)
	}
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative count %q", s)
	}
	return v, nil
}

// digitsOnly strips everything but ASCII digits, e.g. "Game #996" -> "996".
func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
