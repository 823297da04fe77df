package textdiff

import (
	"strings"
	"testing"
)

func TestUnifiedBasicChange(t *testing.T) {
	got := Unified([]Input{{
		Path: "requirements.txt",
		Old:  "flask\nrequests>=2.30.0\nclick\n",
		New:  "flask\nrequests>=2.32.3\nclick\n",
	}})

	if !strings.Contains(got, "--- requirements.txt (old)") {
		t.Errorf("missing old header:\n%s", got)
	}
	if !strings.Contains(got, "+++ requirements.txt (new)") {
		t.Errorf("missing new header:\n%s", got)
	}
	if !strings.Contains(got, "-requests>=2.30.0\n") {
		t.Errorf("missing deletion:\n%s", got)
	}
	if !strings.Contains(got, "+requests>=2.32.3\n") {
		t.Errorf("missing insertion:\n%s", got)
	}
	if !strings.Contains(got, " flask\n") {
		t.Errorf("missing context line:\n%s", got)
	}
	if !strings.Contains(got, "@@ ") {
		t.Errorf("missing hunk header:\n%s", got)
	}
}

func TestUnifiedSkipsIdenticalFiles(t *testing.T) {
	got := Unified([]Input{
		{Path: "same.txt", Old: "a\n", New: "a\n"},
		{Path: "diff.txt", Old: "a\n", New: "b\n"},
	})

	if strings.Contains(got, "same.txt") {
		t.Errorf("identical file should be skipped:\n%s", got)
	}
	if !strings.Contains(got, "diff.txt") {
		t.Errorf("changed file missing:\n%s", got)
	}
}

func TestUnifiedEmpty(t *testing.T) {
	if got := Unified(nil); got != "" {
		t.Errorf("expected empty diff, got %q", got)
	}
	if got := Unified([]Input{{Path: "x", Old: "a\n", New: "a\n"}}); got != "" {
		t.Errorf("expected empty diff, got %q", got)
	}
}

func TestUnifiedHunkHeaderEmptySide(t *testing.T) {
	got := Unified([]Input{{
		Path: "requirements.txt",
		Old:  "",
		New:  "requests>=2.32.3\n",
	}})
	if !strings.Contains(got, "@@ -0,0 +1,1 @@") {
		t.Errorf("pure insert header wrong:\n%s", got)
	}

	got = Unified([]Input{{
		Path: "requirements.txt",
		Old:  "requests>=2.32.3\n",
		New:  "",
	}})
	if !strings.Contains(got, "@@ -1,1 +0,0 @@") {
		t.Errorf("pure delete header wrong:\n%s", got)
	}
}

func TestUnifiedMultipleHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 30; i++ {
		oldLines = append(oldLines, "pkg"+string(rune('a'+i%26)))
	}
	newLines = append([]string{}, oldLines...)
	newLines[0] = "changed-top"
	newLines[29] = "changed-bottom"

	got := Unified([]Input{{
		Path: "requirements.txt",
		Old:  strings.Join(oldLines, "\n") + "\n",
		New:  strings.Join(newLines, "\n") + "\n",
	}})

	if strings.Count(got, "@@ ") != 2 {
		t.Errorf("expected 2 hunks:\n%s", got)
	}
}
