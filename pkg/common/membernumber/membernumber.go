// Package membernumber issues user-facing member numbers of the form M0001.
//
// Numbers are sequential: the next candidate is one past the highest suffix
// already issued. Callers compute the candidate and insert it inside the same
// transaction and ask for the next attempt when the insert hits a uniqueness
// conflict. Once the sequence runs past MaxSequence, Candidate returns
// ErrOutOfRange and callers fill the lowest unused suffix through FromFree.
package membernumber

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const (
	Prefix = "M"
	// MaxSequence is the largest suffix that fits four digits.
	MaxSequence = 9999
	// DefaultAttempts bounds retries on uniqueness conflicts.
	DefaultAttempts = 5
)

var (
	// ErrExhausted is returned when no candidate could be issued.
	ErrExhausted = errors.New("member number generation exhausted")
	// ErrOutOfRange means the next sequential suffix does not fit four digits.
	ErrOutOfRange = errors.New("member number sequence out of range")
)

var pattern = regexp.MustCompile(`^M\d{4}$`)

// Format renders seq as M%04d.
func Format(seq int) string {
	return fmt.Sprintf("%s%04d", Prefix, seq)
}

// Valid reports whether s has the M#### shape.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Parse returns the numeric suffix of a valid member number.
func Parse(s string) (int, bool) {
	if !Valid(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s[len(Prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Generator hands out candidates for successive attempts.
type Generator struct {
	Attempts int
}

// New returns a Generator with DefaultAttempts.
func New() *Generator {
	return &Generator{Attempts: DefaultAttempts}
}

// Candidate returns the number to try on the given zero-based attempt when
// maxSeq is the highest suffix currently stored.
func (g *Generator) Candidate(maxSeq, attempt int) (string, error) {
	limit := g.Attempts
	if limit <= 0 {
		limit = DefaultAttempts
	}
	if attempt >= limit {
		return "", fmt.Errorf("%w: %d attempts", ErrExhausted, attempt)
	}
	seq := maxSeq + 1 + attempt
	if seq > MaxSequence {
		return "", fmt.Errorf("%w: sequence %d exceeds %d", ErrOutOfRange, seq, MaxSequence)
	}
	return Format(seq), nil
}

// FromFree formats the lowest unused suffix found by the store. Zero means
// every suffix up to MaxSequence is taken.
func FromFree(free int) (string, error) {
	if free <= 0 || free > MaxSequence {
		return "", fmt.Errorf("%w: all %d numbers issued", ErrExhausted, MaxSequence)
	}
	return Format(free), nil
}
