// Package pep440 models dotted release versions as produced by Python
// packaging tools: release segments plus optional epoch, pre-release,
// post-release, development and local components.
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// versionRE accepts the normalized and most common non-normalized spellings.
var versionRE = regexp.MustCompile(`^v?(?:(\d+)!)?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d*))?` +
	`(?:(?:[-_.]?(post|rev|r)[-_.]?(\d*))|(?:-(\d+)))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// Version is a parsed version. Zero value is not meaningful; use Parse.
type Version struct {
	Epoch   int
	Release []int
	Pre     *Segment // nil when absent
	Post    *int
	Dev     *int
	Local   string // empty when absent
}

// Segment is a pre-release phase and number, e.g. rc1.
type Segment struct {
	Phase string // "a", "b" or "rc" after normalization
	Num   int
}

// Parse parses a version string. Case and separator variations are
// normalized the way pip normalizes them.
func Parse(s string) (*Version, error) {
	m := versionRE.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return nil, fmt.Errorf("invalid version: %q", s)
	}

	v := &Version{}

	if m[1] != "" {
		v.Epoch, _ = strconv.Atoi(m[1])
	}

	for _, part := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid release segment in %q", s)
		}
		v.Release = append(v.Release, n)
	}

	if m[3] != "" {
		v.Pre = &Segment{Phase: normalizePhase(m[3]), Num: atoiDefault(m[4], 0)}
	}

	switch {
	case m[5] != "":
		n := atoiDefault(m[6], 0)
		v.Post = &n
	case m[7] != "":
		n := atoiDefault(m[7], 0)
		v.Post = &n
	}

	if m[8] != "" {
		n := atoiDefault(m[9], 0)
		v.Dev = &n
	}

	v.Local = m[10]

	return v, nil
}

func normalizePhase(phase string) string {
	switch phase {
	case "alpha":
		return "a"
	case "beta":
		return "b"
	case "c", "pre", "preview":
		return "rc"
	}
	return phase
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// IsPrerelease reports whether the version carries a pre-release segment.
func (v *Version) IsPrerelease() bool {
	return v.Pre != nil
}

// IsDevRelease reports whether the version carries a development segment.
func (v *Version) IsDevRelease() bool {
	return v.Dev != nil
}

// Major returns the first release component.
func (v *Version) Major() int {
	if len(v.Release) == 0 {
		return 0
	}
	return v.Release[0]
}

// Minor returns the second release component, or zero when absent.
func (v *Version) Minor() int {
	if len(v.Release) < 2 {
		return 0
	}
	return v.Release[1]
}

// Public renders the normalized version without the local segment.
func (v *Version) Public() string {
	var b strings.Builder

	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}

	for i, n := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}

	if v.Pre != nil {
		fmt.Fprintf(&b, "%s%d", v.Pre.Phase, v.Pre.Num)
	}
	if v.Post != nil {
		fmt.Fprintf(&b, ".post%d", *v.Post)
	}
	if v.Dev != nil {
		fmt.Fprintf(&b, ".dev%d", *v.Dev)
	}

	return b.String()
}

// String renders the full normalized version including the local segment.
func (v *Version) String() string {
	s := v.Public()
	if v.Local != "" {
		s += "+" + v.Local
	}
	return s
}

// Ranks used to order the optional segments the way pip orders them:
// X.devN < X.aN < X < X.postN within the same release.
const (
	rankNegInf = -1 << 30
	rankPosInf = 1 << 30
)

// Compare returns -1, 0 or 1 comparing a against b.
func Compare(a, b *Version) int {
	if a.Epoch != b.Epoch {
		return cmpInt(a.Epoch, b.Epoch)
	}

	if c := cmpRelease(a.Release, b.Release); c != 0 {
		return c
	}

	if c := cmpInts(preKey(a), preKey(b)); c != 0 {
		return c
	}
	if c := cmpInt(postKey(a), postKey(b)); c != 0 {
		return c
	}
	if c := cmpInt(devKey(a), devKey(b)); c != 0 {
		return c
	}

	return strings.Compare(a.Local, b.Local)
}

func cmpRelease(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return cmpInt(x, y)
		}
	}
	return 0
}

func preKey(v *Version) [3]int {
	switch {
	case v.Pre == nil && v.Post == nil && v.Dev != nil:
		// Plain dev release sorts before any pre-release.
		return [3]int{rankNegInf, 0, 0}
	case v.Pre == nil:
		return [3]int{rankPosInf, 0, 0}
	default:
		return [3]int{0, phaseRank(v.Pre.Phase), v.Pre.Num}
	}
}

func phaseRank(phase string) int {
	switch phase {
	case "a":
		return 0
	case "b":
		return 1
	default: // rc
		return 2
	}
}

func postKey(v *Version) int {
	if v.Post == nil {
		return rankNegInf
	}
	return *v.Post
}

func devKey(v *Version) int {
	if v.Dev == nil {
		return rankPosInf
	}
	return *v.Dev
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInts(a, b [3]int) int {
	for i := range a {
		if c := cmpInt(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}
