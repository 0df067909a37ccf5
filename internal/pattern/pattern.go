// Package pattern implements the glob dialect used by tool approval rules.
//
// Supported tokens: '*' matches any run of characters (including none),
// '?' matches exactly one character, '[seq]' matches one character in the
// set, '[!seq]' one character outside it. Sets may contain ranges such as
// 'a-z'. Matching is case-sensitive and anchored: the whole candidate must
// match. An empty pattern matches nothing.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadPattern reports a malformed pattern, e.g. an unterminated set.
var ErrBadPattern = errors.New("malformed pattern")

// Pattern is a validated, reusable pattern. Rules compile their patterns
// once at config-load time so malformed ones are rejected before any
// decision is evaluated.
type Pattern struct {
	raw string
}

// Compile validates raw and returns a reusable Pattern.
func Compile(raw string) (*Pattern, error) {
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("compile %q: %w", raw, err)
	}
	return &Pattern{raw: raw}, nil
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Match reports whether candidate matches the whole pattern.
func (p *Pattern) Match(candidate string) bool {
	return Match(p.raw, candidate)
}

// MatchName reports whether candidate matches component-wise after
// splitting on ':'. Every segment must match its corresponding pattern
// segment, and the segment counts must agree. A plain pattern with no
// ':' therefore matches a plain name only.
func (p *Pattern) MatchName(candidate string) bool {
	return MatchName(p.raw, candidate)
}

// Match reports whether candidate matches pattern in full. A malformed
// pattern matches nothing; use Compile to surface the error instead.
func Match(pattern, candidate string) bool {
	if pattern == "" {
		return false
	}
	ok, err := match([]rune(pattern), []rune(candidate))
	return err == nil && ok
}

// MatchName matches a tool identifier component-wise: both pattern and
// candidate are split on ':' and each segment must match.
func MatchName(pattern, candidate string) bool {
	if pattern == "" {
		return false
	}
	pParts := strings.Split(pattern, ":")
	cParts := strings.Split(candidate, ":")
	if len(pParts) != len(cParts) {
		return false
	}
	for i := range pParts {
		if !Match(pParts[i], cParts[i]) {
			return false
		}
	}
	return true
}

func validate(pattern string) error {
	p := []rune(pattern)
	for i := 0; i < len(p); i++ {
		if p[i] != '[' {
			continue
		}
		_, next, err := matchSet(p, i, -1)
		if err != nil {
			return err
		}
		i = next - 1
	}
	return nil
}

// match runs an iterative glob with single-star backtracking.
func match(p, s []rune) (bool, error) {
	i, j := 0, 0
	starP, starS := -1, 0
	for j < len(s) {
		if i < len(p) {
			switch p[i] {
			case '*':
				starP, starS = i, j
				i++
				continue
			case '?':
				i++
				j++
				continue
			case '[':
				ok, next, err := matchSet(p, i, s[j])
				if err != nil {
					return false, err
				}
				if ok {
					i = next
					j++
					continue
				}
			default:
				if p[i] == s[j] {
					i++
					j++
					continue
				}
			}
		}
		if starP >= 0 {
			starS++
			i, j = starP+1, starS
			continue
		}
		return false, nil
	}
	for i < len(p) {
		switch p[i] {
		case '*':
			i++
		case '[':
			// Validate trailing set syntax even though nothing is left to match.
			if _, _, err := matchSet(p, i, -1); err != nil {
				return false, err
			}
			return false, nil
		default:
			return false, nil
		}
	}
	return true, nil
}

// matchSet evaluates the character set starting at p[i] ('[') against r.
// A leading '!' negates the set and a ']' directly after the opener (or
// after '!') is a literal member. Returns the index just past the set.
func matchSet(p []rune, i int, r rune) (matched bool, next int, err error) {
	j := i + 1
	negate := false
	if j < len(p) && p[j] == '!' {
		negate = true
		j++
	}
	if j >= len(p) {
		return false, 0, ErrBadPattern
	}
	first := true
	for {
		if j >= len(p) {
			return false, 0, ErrBadPattern
		}
		if p[j] == ']' && !first {
			j++
			break
		}
		first = false
		lo := p[j]
		j++
		hi := lo
		if j+1 < len(p) && p[j] == '-' && p[j+1] != ']' {
			hi = p[j+1]
			j += 2
		}
		if r >= 0 && lo <= r && r <= hi {
			matched = true
		}
	}
	if negate {
		matched = !matched
	}
	return matched, j, nil
}
