// Package password holds the password strength policy and the password hasher.
package password

import (
	"strings"
	"unicode/utf8"
)

const (
	MinLength = 12
	// Symbols is the set of characters that satisfy the symbol requirement.
	Symbols = "@$!%*?&"

	forbiddenSequence = "123456"
	forbiddenWord     = "password"
	// DefaultWeakWord is the localized equivalent of "password" rejected by default.
	DefaultWeakWord = "senha"
)

// Result is the outcome of a policy check.
type Result struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// Policy validates password strength. The zero value is not usable; call NewPolicy.
type Policy struct {
	weakWords []string
}

// NewPolicy returns a policy rejecting "password" and the given localized weak word.
// An empty weakWord falls back to DefaultWeakWord.
func NewPolicy(weakWord string) *Policy {
	weakWord = strings.ToLower(strings.TrimSpace(weakWord))
	if weakWord == "" {
		weakWord = DefaultWeakWord
	}
	words := []string{forbiddenWord}
	if weakWord != forbiddenWord {
		words = append(words, weakWord)
	}
	return &Policy{weakWords: words}
}

// Validate runs every check and reports all failures in check order.
func (p *Policy) Validate(password string) Result {
	var violations []string

	if utf8.RuneCountInString(password) < MinLength {
		violations = append(violations, "must be at least 12 characters long")
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case 'a' <= r && r <= 'z':
			lower = true
		case 'A' <= r && r <= 'Z':
			upper = true
		case '0' <= r && r <= '9':
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}
	if !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !digit {
		violations = append(violations, "must contain a digit")
	}
	if !symbol {
		violations = append(violations, "must contain a symbol ("+Symbols+")")
	}

	if strings.Contains(password, forbiddenSequence) {
		violations = append(violations, `must not contain the sequence "123456"`)
	}

	folded := strings.ToLower(password)
	for _, word := range p.weakWords {
		if strings.Contains(folded, word) {
			violations = append(violations, `must not contain the word "`+word+`"`)
		}
	}

	if repeatedChar(password) {
		violations = append(violations, "must not be a single repeated character")
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

func repeatedChar(s string) bool {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return false
	}
	for _, r := range s[size:] {
		if r != first {
			return false
		}
	}
	return true
}
