package shared

import (
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Zone
// ═══════════════════════════════════════════════════════════════════════════

// Zone is a physical location on campus where a camera or microphone sits,
// usually a room code such as "LH-101".
type Zone string

// IsValid checks if the zone is non-empty.
func (z Zone) IsValid() bool {
	return strings.TrimSpace(string(z)) != ""
}

// String returns the string representation.
func (z Zone) String() string {
	return string(z)
}

// Normalize returns the trimmed, lower-cased zone used for comparisons.
func (z Zone) Normalize() Zone {
	return Zone(strings.ToLower(strings.TrimSpace(string(z))))
}

// SameAs compares two zones ignoring case and surrounding whitespace.
func (z Zone) SameAs(other Zone) bool {
	return z.Normalize() == other.Normalize()
}

// ═══════════════════════════════════════════════════════════════════════════
// Confidence
// ═══════════════════════════════════════════════════════════════════════════

// Confidence is a match or detection score in [0, 1].
type Confidence float64

// IsValid checks if the confidence is within [0, 1].
func (c Confidence) IsValid() bool {
	return c >= 0 && c <= 1
}

// Float64 returns the underlying value.
func (c Confidence) Float64() float64 {
	return float64(c)
}

// Percent formats the confidence as a percentage, e.g. "87.5%".
func (c Confidence) Percent() string {
	return fmt.Sprintf("%.1f%%", float64(c)*100)
}

// NewConfidence creates a Confidence with validation.
func NewConfidence(v float64) (Confidence, error) {
	c := Confidence(v)
	if !c.IsValid() {
		return 0, NewDomainError("shared", "NewConfidence", ErrValueOutOfRange, "confidence must be between 0 and 1")
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// DateKey
// ═══════════════════════════════════════════════════════════════════════════

// DateKeyLayout is the layout of a DateKey.
const DateKeyLayout = "2006-01-02"

// DateKey identifies a calendar day, formatted as YYYY-MM-DD.
type DateKey string

// DateKeyOf returns the DateKey of t in t's location.
func DateKeyOf(t time.Time) DateKey {
	return DateKey(t.Format(DateKeyLayout))
}

// IsValid checks that the key parses as a date.
func (d DateKey) IsValid() bool {
	_, err := time.Parse(DateKeyLayout, string(d))
	return err == nil
}

// String returns the string representation.
func (d DateKey) String() string {
	return string(d)
}

// ParseDateKey validates and returns a DateKey.
func ParseDateKey(s string) (DateKey, error) {
	d := DateKey(strings.TrimSpace(s))
	if !d.IsValid() {
		return "", NewDomainError("shared", "ParseDateKey", ErrInvalidFormat, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return d, nil
}
