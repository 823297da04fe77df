// Package policy computes replacement version specifiers for requirement
// lines from the version actually installed in the environment.
package policy

import (
	"fmt"
	"strings"

	"reqsync/internal/parse"
	"reqsync/internal/pep440"
)

// Policy selects the rewrite rule applied to eligible requirement lines.
type Policy string

const (
	LowerBound    Policy = "lower-bound"     // set/insert a >= floor
	FloorOnly     Policy = "floor-only"      // raise an existing floor only
	FloorAndCap   Policy = "floor-and-cap"   // floor plus a < cap
	UpdateInPlace Policy = "update-in-place" // refresh versions under existing operators
)

// Valid reports whether p names a known policy.
func (p Policy) Valid() bool {
	switch p {
	case LowerBound, FloorOnly, FloorAndCap, UpdateInPlace:
		return true
	}
	return false
}

// Cap strategies for floor-and-cap.
const (
	CapNextMinor = "next-minor"
	CapNextMajor = "next-major"
)

// CapStrategy controls the upper bound for floor-and-cap, with optional
// per-package overrides keyed by normalized name.
type CapStrategy struct {
	Default    string
	PerPackage map[string]string
}

// ForPackage returns the cap rule for one package.
func (c *CapStrategy) ForPackage(normalized string) string {
	if c == nil {
		return CapNextMinor
	}
	if rule, ok := c.PerPackage[normalized]; ok {
		return rule
	}
	if c.Default != "" {
		return c.Default
	}
	return CapNextMinor
}

// Skip reasons carried on no-op decisions.
const (
	ReasonPrerelease = "prerelease-skipped"
	ReasonNoFloor    = "no-existing-floor"
	ReasonUnchanged  = "already-in-sync"
)

// Decision is the outcome of applying a policy to one requirement.
type Decision struct {
	Package          string
	InstalledVersion string
	OldSpec          string
	NewSpec          string
	Policy           Policy
	Changed          bool
	Reason           string // set when Changed is false
}

// Options tunes policy application.
type Options struct {
	AllowPrerelease bool
	KeepLocal       bool
	Cap             *CapStrategy
}

// Operators that act as a version floor and are replaced when a policy
// sets a new one.
func isFloorOp(op string) bool {
	switch op {
	case ">=", ">", "~=", "==":
		return true
	}
	return false
}

// Decide computes the new specifier text for a requirement given the
// installed version. The returned decision is a no-op (Changed false,
// Reason set) when the policy declines to rewrite.
func Decide(req *parse.Requirement, installedVersion string, pol Policy, opts Options) (*Decision, error) {
	installed, err := pep440.Parse(installedVersion)
	if err != nil {
		return nil, fmt.Errorf("installed version for %s: %w", req.Name, err)
	}

	oldSpec := renderSpecifiers(req.Specifiers)
	decision := &Decision{
		Package:          req.Name,
		InstalledVersion: installedVersion,
		OldSpec:          oldSpec,
		NewSpec:          oldSpec,
		Policy:           pol,
	}

	if (installed.IsPrerelease() || installed.IsDevRelease()) && !opts.AllowPrerelease {
		decision.Reason = ReasonPrerelease
		return decision, nil
	}

	floor := installed.Public()
	if installed.Local != "" && opts.KeepLocal {
		floor = installed.String()
	}

	var newSpec string
	switch pol {
	case UpdateInPlace:
		if !hasUpdatableOp(req.Specifiers) {
			decision.Reason = ReasonNoFloor
			return decision, nil
		}
		newSpec = updateInPlace(req.Specifiers, floor)
	case LowerBound:
		newSpec = withFloor(req.Specifiers, floor)
	case FloorOnly:
		if !hasFloor(req.Specifiers) {
			decision.Reason = ReasonNoFloor
			return decision, nil
		}
		newSpec = withFloor(req.Specifiers, floor)
	case FloorAndCap:
		upper := nextMinor(installed)
		if opts.Cap.ForPackage(req.Normalized) == CapNextMajor {
			upper = nextMajor(installed)
		}
		newSpec = fmt.Sprintf(">=%s,<%s", floor, upper)
	default:
		return nil, fmt.Errorf("unknown policy %q", pol)
	}

	decision.NewSpec = newSpec
	if newSpec == oldSpec {
		decision.Reason = ReasonUnchanged
		return decision, nil
	}

	decision.Changed = true
	return decision, nil
}

// updateInPlace replaces the version under every updatable operator,
// keeping the operators themselves verbatim. Lines without one (bare
// names, pure caps or exclusions) never reach here; they stay no-ops.
func updateInPlace(specs []parse.Specifier, floor string) string {
	var parts []string
	for _, s := range specs {
		switch s.Op {
		case ">=", "~=", "==":
			parts = append(parts, s.Op+floor)
		default:
			parts = append(parts, s.Op+s.Version)
		}
	}
	return strings.Join(parts, ",")
}

// hasUpdatableOp reports whether any clause carries an operator that
// update-in-place refreshes.
func hasUpdatableOp(specs []parse.Specifier) bool {
	for _, s := range specs {
		switch s.Op {
		case ">=", "~=", "==":
			return true
		}
	}
	return false
}

// withFloor drops existing floor clauses, prepends >=floor and preserves
// every non-floor clause (caps, exclusions) untouched.
func withFloor(specs []parse.Specifier, floor string) string {
	parts := []string{">=" + floor}
	for _, s := range specs {
		if isFloorOp(s.Op) {
			continue
		}
		parts = append(parts, s.Op+s.Version)
	}
	return strings.Join(parts, ",")
}

func hasFloor(specs []parse.Specifier) bool {
	for _, s := range specs {
		if isFloorOp(s.Op) {
			return true
		}
	}
	return false
}

func nextMajor(v *pep440.Version) string {
	return fmt.Sprintf("%d.0.0", v.Major()+1)
}

func nextMinor(v *pep440.Version) string {
	return fmt.Sprintf("%d.%d.0", v.Major(), v.Minor()+1)
}

func renderSpecifiers(specs []parse.Specifier) string {
	var parts []string
	for _, s := range specs {
		parts = append(parts, s.Op+s.Version)
	}
	return strings.Join(parts, ",")
}
