package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Message-pattern safety limits. The checks run against the SOURCE pattern
// at admission time; the compiled regex is cached on the mapping and never
// re-examined on the hot path.
const (
	maxPatternLength   = 200
	maxQuantifierChars = 15
	maxMatchInput      = 10000
	slowMatchThreshold = 50 * time.Millisecond
	matchSoftDeadline  = 100 * time.Millisecond
)

// ErrPatternUnsafe indicates a message pattern rejected by the safety checks.
var ErrPatternUnsafe = errors.New("regex_unsafe")

var (
	// Nested quantifiers: a quantified group that is itself quantified,
	// e.g. (a+)+ or (ab*)*.
	nestedQuantifierRe = regexp.MustCompile(`\([^)]*[*+]\)[*+]`)

	// Wide alternation under an outer quantifier: a group with five or more
	// alternatives followed by * or +.
	wideAlternationRe = regexp.MustCompile(`\((?:[^()|]*\|){4,}[^()]*\)[*+]`)

	// Bounded repeats whose upper bound has six or more digits.
	hugeRepeatRe = regexp.MustCompile(`\{\d*,\d{6,}\}`)
)

// CheckPatternSafety vets a message-pattern source string. It rejects
// constructs associated with pathological matching before any compilation
// happens, so a hostile pattern never reaches the regex engine.
func CheckPatternSafety(src string) error {
	if len(src) > maxPatternLength {
		return fmt.Errorf("%w: pattern length %d exceeds %d", ErrPatternUnsafe, len(src), maxPatternLength)
	}
	if nestedQuantifierRe.MatchString(src) {
		return fmt.Errorf("%w: nested quantifier", ErrPatternUnsafe)
	}
	if wideAlternationRe.MatchString(src) {
		return fmt.Errorf("%w: quantified wide alternation", ErrPatternUnsafe)
	}
	if hugeRepeatRe.MatchString(src) {
		return fmt.Errorf("%w: repeat bound too large", ErrPatternUnsafe)
	}
	if n := countQuantifiers(src); n > maxQuantifierChars {
		return fmt.Errorf("%w: %d quantifiers exceed %d", ErrPatternUnsafe, n, maxQuantifierChars)
	}
	return nil
}

func countQuantifiers(src string) int {
	n := 0
	for _, r := range src {
		if strings.ContainsRune("*+?{", r) {
			n++
		}
	}
	return n
}

// SafeRegex is a message pattern that passed the safety checks, compiled
// once with case-insensitive multi-line semantics.
type SafeRegex struct {
	source string
	re     *regexp.Regexp
}

// CompilePattern vets and compiles a message pattern.
func CompilePattern(src string) (*SafeRegex, error) {
	if err := CheckPatternSafety(src); err != nil {
		return nil, err
	}
	re, err := regexp.Compile("(?im)" + src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatternUnsafe, err)
	}
	return &SafeRegex{source: src, re: re}, nil
}

// Source returns the original pattern source.
func (s *SafeRegex) Source() string {
	return s.source
}

// Match runs the pattern against input truncated to maxMatchInput chars and
// returns whether it matched plus the elapsed match time. Matches exceeding
// the soft deadline are logged; the result is still returned (RE2 matching
// is linear, the deadline is a tripwire, not an abort).
func (s *SafeRegex) Match(input string) (bool, time.Duration) {
	if len(input) > maxMatchInput {
		input = input[:maxMatchInput]
	}

	start := time.Now()
	matched := s.re.MatchString(input)
	elapsed := time.Since(start)

	if elapsed > matchSoftDeadline {
		slog.Warn("Regex match exceeded soft deadline",
			"pattern", s.source, "elapsed", elapsed, "input_len", len(input))
	}
	return matched, elapsed
}

// Slow reports whether a match duration should be surfaced as a slow match.
func Slow(elapsed time.Duration) bool {
	return elapsed > slowMatchThreshold
}
