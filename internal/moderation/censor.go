// Package moderation masks configured words in message bodies.
package moderation

import (
	"errors"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// ErrNoWords is returned when the word list is empty after cleanup.
var ErrNoWords = errors.New("no censored words configured")

// Censor replaces every occurrence of a censored word with a mask rune.
// Matching ignores case, punctuation inside the word (b.a.d) and common
// digit substitutions (b4d).
type Censor struct {
	matcher *goahocorasick.Machine
	mask    rune
}

type folded struct {
	runes []rune
	index []int
}

// NewCensor builds the automaton for words.
func NewCensor(words []string, mask rune) (*Censor, error) {
	patterns := lo.FilterMap(words, func(w string, _ int) ([]rune, bool) {
		f := fold(strings.TrimSpace(w))
		return f.runes, len(f.runes) > 0
	})
	if len(patterns) == 0 {
		return nil, ErrNoWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{matcher: m, mask: mask}, nil
}

// Apply returns body with every match masked, keeping its length in runes.
// A nil Censor returns body unchanged.
func (c *Censor) Apply(body string) string {
	if c == nil {
		return body
	}

	f := fold(body)
	if len(f.runes) == 0 {
		return body
	}
	terms := c.matcher.MultiPatternSearch(f.runes, false)
	if len(terms) == 0 {
		return body
	}

	out := []rune(body)
	for _, term := range terms {
		end := term.Pos + len(term.Word)
		if term.Pos < 0 || end > len(f.index) {
			continue
		}
		for i := f.index[term.Pos]; i <= f.index[end-1]; i++ {
			if !unicode.IsSpace(out[i]) {
				out[i] = c.mask
			}
		}
	}
	return string(out)
}

// fold lowercases s, drops punctuation and maps look-alike digits, keeping
// the index of every kept rune in the original string.
func fold(s string) folded {
	var f folded
	for i, r := range []rune(s) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(lookalike(r)))
		f.index = append(f.index, i)
	}
	return f
}

func lookalike(r rune) rune {
	switch r {
	case '4':
		return 'a'
	case '3':
		return 'e'
	case '1':
		return 'i'
	case '0':
		return 'o'
	case '5':
		return 's'
	default:
		return r
	}
}
