package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"reqsync/internal/parse"
	"reqsync/internal/policy"
	"reqsync/internal/resolve"
	"reqsync/internal/util"
)

// linePos addresses one logical line inside the graph.
type linePos struct {
	file string
	line int
}

// Plan walks the graph and computes every rewrite without touching disk.
// For a fixed graph, version map and option set the output is
// deterministic and order-stable.
func Plan(graph *resolve.Graph, installed map[string]string, opts Options) (*Result, error) {
	result := &Result{}

	var writable map[linePos]bool
	if opts.LastWins {
		writable = lastOccurrencePositions(graph)
	}

	for _, file := range graph.Files {
		fr := &FileResult{
			File:         file.Path,
			Role:         file.Role,
			OriginalText: file.Text.Text,
			NewText:      file.Text.Text,
			HasBOM:       file.Text.HasBOM,
		}

		switch {
		case parse.HasHashTokens(file.Text.Text) && !opts.AllowHashes:
			// Hash-pinned files are refused whole; siblings proceed.
			fr.HashRefused = true
			result.HashRefused = append(result.HashRefused, file.Path)

		case file.Role == resolve.RoleConstraint && !opts.UpdateConstraints:
			// Discovered for scanning only; left byte-identical.

		default:
			newText, changes, skipped := rewriteFile(file, installed, opts, writable)
			fr.NewText = newText
			fr.Changes = changes
			result.Changes = append(result.Changes, changes...)
			result.Skipped = append(result.Skipped, skipped...)
		}

		fr.Digest = util.Blake3HashHex([]byte(fr.NewText))
		result.Files = append(result.Files, fr)
		if fr.ChangedText() {
			result.Changed = true
		}
	}

	return result, nil
}

// rewriteFile applies filters and the policy to every requirement line
// of one file, emitting untouched lines from their raw bytes.
func rewriteFile(file *resolve.File, installed map[string]string, opts Options, writable map[linePos]bool) (string, []Change, []Skipped) {
	var out strings.Builder
	var changes []Change
	var skipped []Skipped

	for i, line := range file.Lines {
		if line.Kind != parse.KindRequirement || line.Req == nil || line.Req.HasHashes {
			out.WriteString(line.Raw)
			continue
		}

		name := line.Req.Normalized

		if writable != nil && !writable[linePos{file: file.Path, line: i}] {
			out.WriteString(line.Raw)
			skipped = append(skipped, Skipped{File: file.Path, Package: name, Reason: ReasonDuplicate})
			continue
		}

		if skipByFilter(name, opts.Only, opts.Exclude) {
			out.WriteString(line.Raw)
			skipped = append(skipped, Skipped{File: file.Path, Package: name, Reason: ReasonFiltered})
			continue
		}

		version, ok := installed[name]
		if !ok {
			out.WriteString(line.Raw)
			skipped = append(skipped, Skipped{File: file.Path, Package: name, Reason: ReasonNotInstalled})
			continue
		}

		decision, err := policy.Decide(line.Req, version, opts.Policy, policy.Options{
			AllowPrerelease: opts.AllowPrerelease,
			KeepLocal:       opts.KeepLocal,
			Cap:             opts.Cap,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s kept as-is: %v\n", line.Req.Name, err)
			out.WriteString(line.Raw)
			continue
		}

		if !decision.Changed {
			out.WriteString(line.Raw)
			skipped = append(skipped, Skipped{File: file.Path, Package: name, Reason: decision.Reason})
			continue
		}

		newLine := line.Req.Render(decision.NewSpec) + line.Comment + line.EOL
		if newLine == line.Raw {
			out.WriteString(line.Raw)
			continue
		}

		out.WriteString(newLine)
		changes = append(changes, Change{
			File:             file.Path,
			Package:          line.Req.Name,
			InstalledVersion: version,
			OldLine:          line.Raw,
			NewLine:          newLine,
		})
	}

	return out.String(), changes, skipped
}

// skipByFilter evaluates only/exclude globs against the normalized name.
func skipByFilter(name string, only, exclude []string) bool {
	if len(only) > 0 && !matchAny(name, only) {
		return true
	}
	return matchAny(name, exclude)
}

func matchAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(strings.ToLower(pattern), name)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// lastOccurrencePositions finds the last requirement line per package
// across the deterministic traversal order.
func lastOccurrencePositions(graph *resolve.Graph) map[linePos]bool {
	last := make(map[string]linePos)
	for _, file := range graph.Files {
		for i, line := range file.Lines {
			if line.Kind != parse.KindRequirement || line.Req == nil {
				continue
			}
			last[line.Req.Normalized] = linePos{file: file.Path, line: i}
		}
	}

	out := make(map[linePos]bool, len(last))
	for _, pos := range last {
		out[pos] = true
	}
	return out
}
