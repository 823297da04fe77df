// Package textdiff renders unified diffs for changed requirement files.
package textdiff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Input is one changed file to diff.
type Input struct {
	Path string
	Old  string
	New  string
}

const contextLines = 3

// Unified renders a unified diff across all inputs, skipping files whose
// content is identical. Output matches the conventional
// `--- <path> (old)` / `+++ <path> (new)` header form.
func Unified(inputs []Input) string {
	var chunks []string
	for _, in := range inputs {
		if in.Old == in.New {
			continue
		}
		if d := unifiedOne(in); d != "" {
			chunks = append(chunks, d)
		}
	}
	return strings.Join(chunks, "\n")
}

// lineOp is one line of the diff with its operation.
type lineOp struct {
	op   diffmatchpatch.Operation
	text string
}

func unifiedOne(in Input) string {
	dmp := diffmatchpatch.New()

	// Line-mode diff: map lines to runes, diff, then expand back.
	oldRunes, newRunes, lines := dmp.DiffLinesToRunes(in.Old, in.New)
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	var ops []lineOp
	for _, d := range diffs {
		for _, r := range []rune(d.Text) {
			ops = append(ops, lineOp{op: d.Type, text: lines[r]})
		}
	}

	hunks := buildHunks(ops)
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s (old)\n", in.Path)
	fmt.Fprintf(&b, "+++ %s (new)\n", in.Path)
	for _, h := range hunks {
		b.WriteString(h)
	}
	return b.String()
}

// buildHunks groups contiguous changes with surrounding context into
// @@-headed hunks.
func buildHunks(ops []lineOp) []string {
	// Indexes of changed ops.
	var changed []int
	for i, op := range ops {
		if op.op != diffmatchpatch.DiffEqual {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	// Merge change indexes into ranges whose context windows touch.
	type span struct{ start, end int }
	var spans []span
	cur := span{start: changed[0], end: changed[0]}
	for _, idx := range changed[1:] {
		if idx-cur.end <= contextLines*2 {
			cur.end = idx
			continue
		}
		spans = append(spans, cur)
		cur = span{start: idx, end: idx}
	}
	spans = append(spans, cur)

	// Track old/new line numbers for each op position.
	oldLine := make([]int, len(ops))
	newLine := make([]int, len(ops))
	o, n := 1, 1
	for i, op := range ops {
		oldLine[i] = o
		newLine[i] = n
		switch op.op {
		case diffmatchpatch.DiffEqual:
			o++
			n++
		case diffmatchpatch.DiffDelete:
			o++
		case diffmatchpatch.DiffInsert:
			n++
		}
	}

	var hunks []string
	for _, s := range spans {
		start := max(0, s.start-contextLines)
		end := min(len(ops)-1, s.end+contextLines)

		var oldCount, newCount int
		var body strings.Builder
		for i := start; i <= end; i++ {
			text := ensureNewline(ops[i].text)
			switch ops[i].op {
			case diffmatchpatch.DiffEqual:
				body.WriteString(" " + text)
				oldCount++
				newCount++
			case diffmatchpatch.DiffDelete:
				body.WriteString("-" + text)
				oldCount++
			case diffmatchpatch.DiffInsert:
				body.WriteString("+" + text)
				newCount++
			}
		}

		// An empty side starts at the line before the change, per the
		// unified format convention.
		oldStart := oldLine[start]
		if oldCount == 0 {
			oldStart--
		}
		newStart := newLine[start]
		if newCount == 0 {
			newStart--
		}

		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		hunks = append(hunks, header+body.String())
	}

	return hunks
}

func ensureNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n\\ No newline at end of file\n"
}
