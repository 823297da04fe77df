// Package fileio provides the safe-rewrite primitives for requirement
// files: encoding-preserving reads, atomic replace writes, timestamped
// backup rotation and a cross-process advisory lock.
package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// FileText is decoded file content plus the formatting attributes that
// must survive a rewrite.
type FileText struct {
	Text    string // decoded text, BOM stripped
	Newline string // dominant newline style, first seen wins
	HasBOM  bool
}

// ReadText reads a file preserving its formatting attributes. Content
// that is not valid UTF-8 is rejected rather than silently replaced.
func ReadText(path string) (*FileText, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	hasBOM := len(raw) >= 3 && string(raw[:3]) == string(utf8BOM)
	if hasBOM {
		raw = raw[3:]
	}

	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%s: content is not valid UTF-8", path)
	}

	text := string(raw)
	return &FileText{Text: text, Newline: detectNewline(text), HasBOM: hasBOM}, nil
}

// detectNewline returns the first line-break style seen, defaulting to "\n".
func detectNewline(text string) string {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			return "\n"
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				return "\r\n"
			}
			return "\r"
		}
	}
	return "\n"
}

// WriteText atomically replaces path with content, restoring the BOM
// when the original carried one.
func WriteText(path, content string, hasBOM bool) error {
	payload := []byte(content)
	if hasBOM {
		payload = append(append([]byte{}, utf8BOM...), payload...)
	}
	return WriteAtomic(path, payload)
}

// WriteAtomic writes data to a temporary file in the target directory,
// syncs it, then renames over the target. The original is never left
// truncated or partially written.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "reqsync-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		// Keep the original mode on the replacement.
		os.Chmod(tmpPath, info.Mode())
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	return nil
}

// CopyFile copies src to dst preserving the file mode.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(src); err == nil {
		mode = info.Mode()
	}

	if err := os.WriteFile(dst, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

// LockPath returns the sibling advisory lock path for a file.
func LockPath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+".reqsync.lock")
}
