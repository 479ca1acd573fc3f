package plugin

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Predicate is a parsed semver constraint of the form {op}{literal}, e.g.
// ">=1.3.0" or "~=2.1". The zero value is not valid; use ParsePredicate.
type Predicate struct {
	Op      string // one of "=", ">", ">=", "<", "<=", "!=", "~=", "^"
	Literal string // semver literal, without a leading "v"
}

var validOps = map[string]bool{
	"=": true, ">": true, ">=": true, "<": true, "<=": true, "!=": true, "~=": true, "^": true,
}

// ParsePredicate splits an operator prefix from a semver literal. A bare
// version with no operator defaults to "=".
func ParsePredicate(spec string) (Predicate, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Predicate{}, fmt.Errorf("empty version predicate")
	}

	for _, op := range []string{">=", "<=", "!=", "~=", "^", ">", "<", "="} {
		if strings.HasPrefix(spec, op) {
			lit := strings.TrimSpace(strings.TrimPrefix(spec, op))
			if !isValidSemver(lit) {
				return Predicate{}, fmt.Errorf("malformed semver literal %q", lit)
			}
			return Predicate{Op: op, Literal: lit}, nil
		}
	}

	if !isValidSemver(spec) {
		return Predicate{}, fmt.Errorf("malformed semver literal %q", spec)
	}
	return Predicate{Op: "=", Literal: spec}, nil
}

// Satisfies reports whether the given version satisfies the predicate.
// version must be a valid semver literal (without "v" prefix accepted).
func (p Predicate) Satisfies(version string) (bool, error) {
	if !validOps[p.Op] {
		return false, fmt.Errorf("unknown version operator %q", p.Op)
	}
	if !isValidSemver(version) {
		return false, fmt.Errorf("malformed semver literal %q", version)
	}

	cmp := semver.Compare(canonicalize(version), canonicalize(p.Literal))

	switch p.Op {
	case "=":
		return cmp == 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case "!=":
		return cmp != 0, nil
	case "~=":
		// Same major and minor, >= literal.
		return semver.MajorMinor(canonicalize(version)) == semver.MajorMinor(canonicalize(p.Literal)) && cmp >= 0, nil
	case "^":
		// Same major, >= literal.
		return semver.Major(canonicalize(version)) == semver.Major(canonicalize(p.Literal)) && cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown version operator %q", p.Op)
	}
}

// String renders the predicate back to its "{op}{literal}" form.
func (p Predicate) String() string {
	if p.Op == "=" {
		return p.Literal
	}
	return p.Op + p.Literal
}

func isValidSemver(v string) bool {
	return semver.IsValid(canonicalize(v))
}

// canonicalize adds the "v" prefix golang.org/x/mod/semver requires.
func canonicalize(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}
