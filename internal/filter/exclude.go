// Package filter decides which watched files are left alone.
package filter

import (
	"fmt"
	"regexp"
)

// Exclusion matches base names against a user-supplied pattern.
// A nil *Exclusion excludes nothing.
type Exclusion struct {
	re *regexp.Regexp
}

// New compiles pattern. An empty pattern yields a nil filter.
func New(pattern string) (*Exclusion, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
	}

	return &Exclusion{re: re}, nil
}

// Excluded reports whether the pattern matches anywhere in baseName.
func (e *Exclusion) Excluded(baseName string) bool {
	if e == nil {
		return false
	}

	return e.re.MatchString(baseName)
}

// String returns the source pattern.
func (e *Exclusion) String() string {
	if e == nil {
		return ""
	}

	return e.re.String()
}
