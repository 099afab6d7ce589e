package provisioning

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CodeScheme derives the next employee code from the highest existing one.
// found is false when the type has no employees yet.
type CodeScheme interface {
	Next(last string, found bool) (string, error)
}

// PaddedScheme produces prefix + zero-padded counter, e.g. "20" + "0001".
type PaddedScheme struct {
	Prefix string
	Width  int
	Seed   uint64
}

func (s PaddedScheme) Next(last string, found bool) (string, error) {
	if !found {
		counter, err := fit(fmt.Sprintf("seed %d", s.Seed), max(s.Seed, 1), s.Width)
		if err != nil {
			return "", err
		}
		return s.Prefix + counter, nil
	}
	if !strings.HasPrefix(last, s.Prefix) {
		return "", fmt.Errorf("%w: %q does not start with prefix %q", ErrCodeFormat, last, s.Prefix)
	}
	n, err := parseCounter(last, strings.TrimPrefix(last, s.Prefix))
	if err != nil {
		return "", err
	}
	counter, err := fit(last, n+1, s.Width)
	if err != nil {
		return "", err
	}
	return s.Prefix + counter, nil
}

// SequentialScheme treats the whole code as an increasing integer. Codes
// keep the length of the seed, or of the latest code when no seed is set.
type SequentialScheme struct {
	Seed string
}

func (s SequentialScheme) Next(last string, found bool) (string, error) {
	if !found {
		if _, err := parseCounter(s.Seed, s.Seed); err != nil {
			return "", fmt.Errorf("seed: %w", err)
		}
		return s.Seed, nil
	}
	n, err := parseCounter(last, last)
	if err != nil {
		return "", err
	}
	width := len(s.Seed)
	if width == 0 {
		width = len(last)
	}
	return fit(last, n+1, width)
}

// DashedScheme produces PREFIX-NNN codes.
type DashedScheme struct {
	Prefix string
	Width  int
}

func (s DashedScheme) Next(last string, found bool) (string, error) {
	if !found {
		return s.Prefix + "-" + pad(1, s.Width), nil
	}
	parts := strings.Split(last, "-")
	if len(parts) != 2 || parts[0] != s.Prefix {
		return "", fmt.Errorf("%w: %q is not %s-NNN", ErrCodeFormat, last, s.Prefix)
	}
	n, err := parseCounter(last, parts[1])
	if err != nil {
		return "", err
	}
	counter, err := fit(last, n+1, s.Width)
	if err != nil {
		return "", err
	}
	return s.Prefix + "-" + counter, nil
}

func parseCounter(code, digits string) (uint64, error) {
	if digits == "" {
		return 0, fmt.Errorf("%w: %q has no numeric part", ErrCodeFormat, code)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q has non-numeric part %q", ErrCodeFormat, code, digits)
		}
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrCodeFormat, code, err)
	}
	if n == math.MaxUint64 {
		return 0, fmt.Errorf("%w: %q cannot be incremented", ErrCodeFormat, code)
	}
	return n, nil
}

// fit pads n to width and rejects counters that no longer fit. A longer
// code sorts below the current maximum, so the latest-code lookup would
// keep returning the old one.
func fit(code string, n uint64, width int) (string, error) {
	s := pad(n, width)
	if width > 0 && len(s) > width {
		return "", fmt.Errorf("%w: %q: counter exceeds width %d", ErrCodeFormat, code, width)
	}
	return s, nil
}

func pad(n uint64, width int) string {
	s := strconv.FormatUint(n, 10)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// SchemeKind names a CodeScheme family in configuration.
type SchemeKind string

const (
	SchemePadded     SchemeKind = "padded"
	SchemeSequential SchemeKind = "sequential"
	SchemeDashed     SchemeKind = "dashed"
)

// SchemeResolver picks the CodeScheme for an employee type. Seeds maps
// normalized type names to the first code for that type.
type SchemeResolver struct {
	Kind  SchemeKind
	Width int
	Seeds map[string]string
}

// For returns the scheme for t.
func (r SchemeResolver) For(t EmployeeType) (CodeScheme, error) {
	width := r.Width
	if width <= 0 {
		width = 4
	}
	seed, hasSeed := r.Seeds[NormalizeTypeName(t.Name)]
	switch r.Kind {
	case SchemePadded:
		scheme := PaddedScheme{Prefix: t.CodePrefix, Width: width}
		if hasSeed {
			n, err := parseCounter(seed, seed)
			if err != nil {
				return nil, fmt.Errorf("seed for %s: %w", t.Name, err)
			}
			scheme.Seed = n
		}
		return scheme, nil
	case SchemeSequential, "":
		if !hasSeed {
			seed = t.CodePrefix + pad(1, width)
		}
		return SequentialScheme{Seed: seed}, nil
	case SchemeDashed:
		return DashedScheme{Prefix: t.CodePrefix, Width: width}, nil
	}
	return nil, fmt.Errorf("unknown code scheme %q", r.Kind)
}
