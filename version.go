package episodb

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// FormatVersion is the on-disk format version written into new datasets.
const FormatVersion = "v1.0.0"

// Range is an inclusive range of format versions.
type Range struct {
	Min string
	Max string
}

// SupportedRange is the range of format versions this package reads.
var SupportedRange = Range{Min: "v1.0.0", Max: FormatVersion}

// Verdict is the result of a compatibility check.
type Verdict int

const (
	// Compatible versions lie inside the supported range.
	Compatible Verdict = iota
	// Older versions predate the range but share its major version and
	// remain readable.
	Older
	// Newer versions were written by a later release.
	Newer
	// Incompatible versions have a different major version.
	Incompatible
	// Invalid versions are not semantic versions.
	Invalid
)

func (v Verdict) String() string {
	switch v {
	case Compatible:
		return "compatible"
	case Older:
		return "older"
	case Newer:
		return "newer"
	case Incompatible:
		return "incompatible"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Readable reports whether datasets with this verdict can be opened.
func (v Verdict) Readable() bool {
	return v == Compatible || v == Older
}

// CheckCompatibility classifies the stored version against r.
// A missing "v" prefix is accepted.
func CheckCompatibility(stored string, r Range) Verdict {
	v := normalizeVersion(stored)
	if !semver.IsValid(v) {
		return Invalid
	}
	lo, hi := normalizeVersion(r.Min), normalizeVersion(r.Max)

	if semver.Major(v) != semver.Major(hi) && semver.Major(v) != semver.Major(lo) {
		return Incompatible
	}
	switch {
	case semver.Compare(v, hi) > 0:
		return Newer
	case semver.Compare(v, lo) < 0:
		return Older
	default:
		return Compatible
	}
}

func normalizeVersion(s string) string {
	s = strings.TrimSpace(s)
	if s != "" && !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}

func checkVersion(stored string) error {
	switch verdict := CheckCompatibility(stored, SupportedRange); verdict {
	case Compatible, Older:
		return nil
	case Invalid:
		return fmt.Errorf("%w: format version %q", ErrCorruptFormat, stored)
	default:
		return fmt.Errorf("%w: %s (%s, supported %s..%s)", ErrUnsupportedVersion, stored, verdict, SupportedRange.Min, SupportedRange.Max)
	}
}
