package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidCity is matched by every error ValidateCity returns.
var ErrInvalidCity = errors.New("invalid city")

var (
	ErrCityEmpty        = fmt.Errorf("%w: city is required", ErrInvalidCity)
	ErrCityTooShort     = fmt.Errorf("%w: city too short", ErrInvalidCity)
	ErrCityTooLong      = fmt.Errorf("%w: city too long", ErrInvalidCity)
	ErrCityInvalidChars = fmt.Errorf("%w: city contains invalid characters", ErrInvalidCity)
)

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in
// runes; zero disables a bound) and restricts the name to letters, digits,
// space, comma, hyphen, period and apostrophe. It returns the trimmed name;
// case is left alone so it can still be displayed as typed.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
