package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reqsync/internal/resolve"
)

// JSONFileResult is the wire form of one file outcome.
type JSONFileResult struct {
	File        string       `json:"file"`
	Role        resolve.Role `json:"role"`
	Changed     bool         `json:"changed"`
	ChangeCount int          `json:"change_count"`
	Digest      string       `json:"digest"`
	HashRefused bool         `json:"hash_refused,omitempty"`
}

// JSONChange is the wire form of one package-line rewrite.
type JSONChange struct {
	File             string `json:"file"`
	Package          string `json:"package"`
	InstalledVersion string `json:"installed_version"`
	OldLine          string `json:"old_line"`
	NewLine          string `json:"new_line"`
}

// JSONResult is the machine-readable run outcome.
type JSONResult struct {
	Changed     bool             `json:"changed"`
	Files       []JSONFileResult `json:"files"`
	Changes     []JSONChange     `json:"changes"`
	BackupPaths []string         `json:"backup_paths"`
	Diff        *string          `json:"diff"`
}

// JSON converts the result to its wire form. Line text is reported
// without trailing line breaks.
func (r *Result) JSON() *JSONResult {
	out := &JSONResult{
		Changed:     r.Changed,
		Files:       []JSONFileResult{},
		Changes:     []JSONChange{},
		BackupPaths: append([]string{}, r.BackupPaths...),
	}

	for _, fr := range r.Files {
		out.Files = append(out.Files, JSONFileResult{
			File:        fr.File,
			Role:        fr.Role,
			Changed:     fr.ChangedText(),
			ChangeCount: len(fr.Changes),
			Digest:      fr.Digest,
			HashRefused: fr.HashRefused,
		})
	}

	for _, c := range r.Changes {
		out.Changes = append(out.Changes, JSONChange{
			File:             c.File,
			Package:          c.Package,
			InstalledVersion: c.InstalledVersion,
			OldLine:          strings.TrimRight(c.OldLine, "\r\n"),
			NewLine:          strings.TrimRight(c.NewLine, "\r\n"),
		})
	}

	if r.Diff != "" {
		diff := r.Diff
		out.Diff = &diff
	}

	return out
}

// WriteJSONReport writes the report to path, resolving a directory
// target to reqsync-report.json inside it. Returns the resolved path.
func WriteJSONReport(report *JSONResult, path string) (string, error) {
	target := path
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, "reqsync-report.json")
	} else if strings.TrimSpace(target) == "" || target == "." {
		target = "reqsync-report.json"
	}

	if dir := filepath.Dir(target); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(target, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return target, nil
}
