package types

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// nsPerUnit maps a recognized duration suffix to its nanosecond multiplier.
// Ordered longest-prefix-first is not required here since suffixes are
// matched by trailing-string comparison, longest match first, in splitUnit.
var nsPerUnit = map[string]uint64{
	"us": 1_000,
	"µs": 1_000,
	"ms": 1_000_000,
	"s": 1_000_000_000,
	"m": 60_000_000_000,
	"h": 3_600_000_000_000,
	"d": 86_400_000_000_000,
}

// ParseDurationNS parses the duration grammar : a decimal integer or
// fraction ("1500", "1.5", "3/2"), optional unit suffix (us/µs/ms/s/m/h/d,
// case-insensitive, default seconds). Fractions are evaluated with integer
// numerator/denominator arithmetic so precision never degrades through a
// float round-trip; "0" (with or without a unit) disables the timeout by
// returning (0, nil).
func ParseDurationNS(s string) (uint64, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("types: empty duration")
	}

	unit, numeric := splitUnit(raw)
	mult, ok := nsPerUnit[unit]
	if !ok {
		return 0, fmt.Errorf("types: unknown duration unit in %q", s)
	}

	num, den, err := parseNumerator(numeric)
	if err != nil {
		return 0, fmt.Errorf("types: invalid duration %q: %w", s, err)
	}
	if num == 0 {
		return 0, nil
	}

	// (num * mult) / den, checked for overflow in the multiply.
	hi, lo := bits.Mul64(num, mult)
	if hi != 0 {
		return 0, fmt.Errorf("types: duration %q overflows", s)
	}
	return lo / den, nil
}

// ParseBackoffRatio parses a retry backoff multiplier given as a decimal
// followed by a literal "x" (e.g. "2x", "1.5x", case-insensitive),
// returning an integer numerator/denominator pair so the retry
// orchestrator scales delays without floating point.
func ParseBackoffRatio(s string) (num, den uint64, err error) {
	raw := strings.TrimSpace(s)
	lower := strings.ToLower(raw)
	if !strings.HasSuffix(lower, "x") {
		return 0, 0, fmt.Errorf("types: backoff %q missing trailing 'x'", s)
	}
	return parseNumerator(raw[:len(raw)-1])
}

// splitUnit separates a trailing unit suffix (longest match first, so "ms"
// is preferred over a bare "s" suffix match) from the numeric prefix.
// Returns the default unit "s" when no suffix is present.
func splitUnit(raw string) (unit string, numeric string) {
	candidates := []string{"us", "µs", "ms", "s", "m", "h", "d"}
	lower := strings.ToLower(raw)
	best := ""
	for _, c := range candidates {
		if strings.HasSuffix(lower, c) && len(c) > len(best) {
			best = c
		}
	}
	if best == "" {
		return "s", raw
	}
	return best, raw[:len(raw)-len(best)]
}

// parseNumerator parses a decimal integer, a decimal fraction ("1.5"), or an
// explicit ratio ("3/2") into an integer numerator/denominator pair so the
// caller can scale by a nanosecond multiplier without floating point.
func parseNumerator(s string) (num, den uint64, err error) {
	if s == "" {
		return 0, 0, fmt.Errorf("missing numeric value")
	}

	if strings.Contains(s, "/") {
		parts := strings.SplitN(s, "/", 2)
		n, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		d, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if d == 0 {
			return 0, 0, fmt.Errorf("zero denominator")
		}
		return n, d, nil
	}

	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		whole := s[:dot]
		frac := s[dot+1:]
		if whole == "" {
			whole = "0"
		}
		den = 1
		for range frac {
			den *= 10
		}
		if den == 0 {
			den = 1
		}
		w, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		var f uint64
		if frac != "" {
			f, err = strconv.ParseUint(frac, 10, 64)
			if err != nil {
				return 0, 0, err
			}
		}
		return w*den + f, den, nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return n, 1, nil
}
