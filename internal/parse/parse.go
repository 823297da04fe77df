// Package parse classifies requirement-file lines and discovers the
// -r/--requirement and -c/--constraint links between files.
//
// Every line keeps its raw original bytes so that untouched lines are
// reproduced exactly on rewrite.
package parse

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the semantic category of one logical line.
type Kind string

const (
	KindBlank       Kind = "blank"
	KindComment     Kind = "comment"
	KindRequirement Kind = "requirement"
	KindInclude     Kind = "include"    // -r / --requirement
	KindConstraint  Kind = "constraint" // -c / --constraint
	KindEditable    Kind = "editable"   // -e / --editable, never rewritten
	KindDirective   Kind = "directive"  // other pip options, never rewritten
	KindVCS         Kind = "vcs"        // VCS or URL requirement, never rewritten
	KindLocalPath   Kind = "path"       // filesystem path, never rewritten
	KindUnparsed    Kind = "unparsed"   // kept verbatim
)

// Specifier is one comparison clause of a version specifier.
type Specifier struct {
	Op      string
	Version string
}

// Requirement is the parsed payload of a KindRequirement line.
type Requirement struct {
	Name       string
	Normalized string
	Extras     []string
	Specifiers []Specifier
	Marker     string // raw environment marker text, without the leading ';'
	HasHashes  bool   // --hash= tokens present on the logical line
}

// Line is one classified logical line. A logical line may span several
// physical lines joined by trailing backslashes; Raw holds all original
// bytes including line breaks so a no-op rewrite is byte-identical.
type Line struct {
	Raw       string
	Content   string // joined content without inline comment and EOL
	Comment   string // inline comment including the leading " #", or ""
	EOL       string // EOL of the last physical line ("" at EOF)
	Kind      Kind
	Req       *Requirement // non-nil for KindRequirement
	RefPath   string       // referenced path for include/constraint lines
	Continued bool         // spanned multiple physical lines
}

var (
	vcsOrURLRE  = regexp.MustCompile(`(?i)^(git\+|https?://|ssh://|file:|svn\+|hg\+|bzr\+)`)
	localPathRE = regexp.MustCompile(`^(\.\.?/|/|[a-zA-Z]:\\)`)
	includeRE   = regexp.MustCompile(`(?i)^(-r|--requirement)[ =\t]+(.+)$`)
	constrainRE = regexp.MustCompile(`(?i)^(-c|--constraint)[ =\t]+(.+)$`)
	nameRE      = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)`)
	specRE      = regexp.MustCompile(`^(===|==|!=|<=|>=|~=|<|>)\s*(\S+)$`)
	separatorRE = regexp.MustCompile(`[-_.]+`)
	hashTokenRE = regexp.MustCompile(`\s*--hash=\S+`)
)

// directivePrefixes are pip options that introduce non-package lines.
var directivePrefixes = []string{
	"-r", "--requirement",
	"-c", "--constraint",
	"-e", "--editable",
	"--index-url", "--extra-index-url",
	"--find-links", "--trusted-host", "--no-index",
}

// NormalizeName canonicalizes a package name: lower case with runs of
// '-', '_' and '.' collapsed to a single '-'.
func NormalizeName(name string) string {
	return separatorRE.ReplaceAllString(strings.ToLower(name), "-")
}

// File parses full file text into classified logical lines. The text is
// split on physical line boundaries first; physical lines ending in a
// backslash are joined into one logical line before classification.
func File(text string) []Line {
	physical := splitKeepEnds(text)

	var lines []Line
	for i := 0; i < len(physical); i++ {
		raw := physical[i]
		content, eol := splitEOL(raw)
		continued := false

		// Join continuation lines. The backslash must be the final
		// character before the line break.
		for strings.HasSuffix(content, `\`) && i+1 < len(physical) {
			continued = true
			i++
			raw += physical[i]
			next, nextEOL := splitEOL(physical[i])
			content = strings.TrimSuffix(content, `\`) + next
			eol = nextEOL
		}

		line := classify(content)
		line.Raw = raw
		line.EOL = eol
		line.Continued = continued
		lines = append(lines, line)
	}

	return lines
}

// classify turns joined line content into a typed Line. Raw, EOL and
// Continued are filled by the caller.
func classify(content string) Line {
	stripped := strings.TrimSpace(content)

	if stripped == "" {
		return Line{Content: content, Kind: KindBlank}
	}
	if strings.HasPrefix(stripped, "#") {
		return Line{Content: content, Kind: KindComment}
	}

	if m := includeRE.FindStringSubmatch(stripped); m != nil {
		return Line{Content: content, Kind: KindInclude, RefPath: extractLinkPath(m[2])}
	}
	if m := constrainRE.FindStringSubmatch(stripped); m != nil {
		return Line{Content: content, Kind: KindConstraint, RefPath: extractLinkPath(m[2])}
	}

	if hasDirectivePrefix(stripped, "-e", "--editable") {
		return Line{Content: content, Kind: KindEditable}
	}
	if isDirective(stripped) {
		return Line{Content: content, Kind: KindDirective}
	}

	if vcsOrURLRE.MatchString(stripped) {
		return Line{Content: content, Kind: KindVCS}
	}
	if localPathRE.MatchString(stripped) {
		return Line{Content: content, Kind: KindLocalPath}
	}

	body, comment := SplitTrailingComment(strings.TrimRight(content, " \t"))
	req, err := ParseRequirement(body)
	if err != nil {
		return Line{Content: content, Kind: KindUnparsed}
	}

	return Line{Content: body, Comment: comment, Kind: KindRequirement, Req: req}
}

func hasDirectivePrefix(stripped string, prefixes ...string) bool {
	token := strings.Fields(stripped)[0]
	for _, p := range prefixes {
		if token == p {
			return true
		}
	}
	return false
}

// isDirective reports whether the line is a non-package pip option.
func isDirective(stripped string) bool {
	token := strings.Fields(stripped)[0]
	if strings.HasPrefix(token, "--") && !strings.HasPrefix(token, "--hash") {
		return true
	}
	for _, p := range directivePrefixes {
		if token == p {
			return true
		}
	}
	return false
}

// SplitTrailingComment splits an inline comment off the line body while
// preserving URLs that contain '#'.
func SplitTrailingComment(raw string) (body, comment string) {
	if idx := strings.Index(raw, " #"); idx >= 0 {
		return strings.TrimRight(raw[:idx], " \t"), raw[idx:]
	}
	return raw, ""
}

func extractLinkPath(rawValue string) string {
	value, _ := SplitTrailingComment(rawValue)
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	return value
}

// ParseRequirement parses "name[extras]specifiers; marker" content.
func ParseRequirement(body string) (*Requirement, error) {
	rest := strings.TrimSpace(body)

	req := &Requirement{}
	if hashTokenRE.MatchString(rest) {
		req.HasHashes = true
		rest = strings.TrimSpace(hashTokenRE.ReplaceAllString(rest, ""))
	}

	if idx := strings.Index(rest, ";"); idx >= 0 {
		req.Marker = strings.TrimSpace(rest[idx+1:])
		rest = strings.TrimSpace(rest[:idx])
	}

	m := nameRE.FindString(rest)
	if m == "" {
		return nil, fmt.Errorf("no package name in %q", body)
	}
	req.Name = m
	req.Normalized = NormalizeName(m)
	rest = strings.TrimSpace(rest[len(m):])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, fmt.Errorf("unterminated extras in %q", body)
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			extra = strings.TrimSpace(extra)
			if extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
		rest = rest[end+1:]
	}

	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	if rest == "" {
		return req, nil
	}

	for _, clause := range strings.Split(rest, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		sm := specRE.FindStringSubmatch(clause)
		if sm == nil {
			return nil, fmt.Errorf("invalid specifier clause %q in %q", clause, body)
		}
		req.Specifiers = append(req.Specifiers, Specifier{Op: sm[1], Version: sm[2]})
	}

	return req, nil
}

// Render rebuilds requirement content from its parts, replacing the
// specifier list with spec.
func (r *Requirement) Render(spec string) string {
	out := r.Name
	if len(r.Extras) > 0 {
		out += "[" + strings.Join(r.Extras, ",") + "]"
	}
	out += spec
	if r.Marker != "" {
		out += "; " + r.Marker
	}
	return out
}

// LinkRef is an include or constraint reference found in a file.
type LinkRef struct {
	Path       string
	Constraint bool
}

// FileLinks returns the include and constraint references of classified
// lines in declaration order.
func FileLinks(lines []Line) []LinkRef {
	var refs []LinkRef
	for _, line := range lines {
		switch line.Kind {
		case KindInclude:
			refs = append(refs, LinkRef{Path: line.RefPath})
		case KindConstraint:
			refs = append(refs, LinkRef{Path: line.RefPath, Constraint: true})
		}
	}
	return refs
}

// HasHashTokens reports whether any line of the text carries --hash= pins.
func HasHashTokens(text string) bool {
	return strings.Contains(text, "--hash=")
}

func splitKeepEnds(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func splitEOL(line string) (content, eol string) {
	if strings.HasSuffix(line, "\r\n") {
		return line[:len(line)-2], "\r\n"
	}
	if strings.HasSuffix(line, "\n") {
		return line[:len(line)-1], "\n"
	}
	if strings.HasSuffix(line, "\r") {
		return line[:len(line)-1], "\r"
	}
	return line, ""
}
