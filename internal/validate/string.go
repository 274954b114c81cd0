// Package validate checks author-supplied scene and bug content: text
// fields, image references, upload types and image links.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmpty             = errors.New("value is required")
	ErrStringTooShort    = errors.New("text is too short")
	ErrStringTooLong     = errors.New("text is too long")
	ErrInvalidCharacters = errors.New("text contains invalid characters")
)

// TextRule bounds a free-text field. Lengths count runes after surrounding
// whitespace is trimmed; zero disables a bound.
type TextRule struct {
	Min       int
	Max       int
	Multiline bool
	Optional  bool
}

var (
	nameRule    = TextRule{Min: 1, Max: 100}
	promptRule  = TextRule{Min: 1, Max: 500, Multiline: true}
	funFactRule = TextRule{Min: 1, Max: 2000, Multiline: true}
)

// Check trims s and returns it if it satisfies r.
func (r TextRule) Check(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if r.Optional {
			return "", nil
		}
		return "", ErrEmpty
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidCharacters)
	}

	switch n := utf8.RuneCountInString(s); {
	case r.Min > 0 && n < r.Min:
		return "", fmt.Errorf("%w: %d of at least %d characters", ErrStringTooShort, n, r.Min)
	case r.Max > 0 && n > r.Max:
		return "", fmt.Errorf("%w: %d of at most %d characters", ErrStringTooLong, n, r.Max)
	}

	if i := strings.IndexFunc(s, r.forbidden); i >= 0 {
		c, _ := utf8.DecodeRuneInString(s[i:])
		return "", fmt.Errorf("%w: control character %U", ErrInvalidCharacters, c)
	}
	return s, nil
}

func (r TextRule) forbidden(c rune) bool {
	if r.Multiline && (c == '\n' || c == '\r' || c == '\t') {
		return false
	}
	return unicode.IsControl(c)
}

// Name checks a scene or bug name: one line, at most 100 characters.
func Name(s string) (string, error) { return nameRule.Check(s) }

// Prompt checks the hint shown while a bug is hunted.
func Prompt(s string) (string, error) { return promptRule.Check(s) }

// FunFact checks the text revealed once a bug is found.
func FunFact(s string) (string, error) { return funFactRule.Check(s) }
