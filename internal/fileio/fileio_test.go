package fileio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadTextAttributes(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		text    string
		newline string
		hasBOM  bool
	}{
		{"lf", []byte("a\nb\n"), "a\nb\n", "\n", false},
		{"crlf", []byte("a\r\nb\r\n"), "a\r\nb\r\n", "\r\n", false},
		{"mixed first wins", []byte("a\r\nb\n"), "a\r\nb\n", "\r\n", false},
		{"bom", append([]byte{0xef, 0xbb, 0xbf}, []byte("a\n")...), "a\n", "\n", true},
		{"empty", nil, "", "\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "req.txt")
			if err := os.WriteFile(path, tt.raw, 0644); err != nil {
				t.Fatal(err)
			}

			ft, err := ReadText(path)
			if err != nil {
				t.Fatal(err)
			}
			if ft.Text != tt.text {
				t.Errorf("Text = %q, want %q", ft.Text, tt.text)
			}
			if ft.Newline != tt.newline {
				t.Errorf("Newline = %q, want %q", ft.Newline, tt.newline)
			}
			if ft.HasBOM != tt.hasBOM {
				t.Errorf("HasBOM = %v, want %v", ft.HasBOM, tt.hasBOM)
			}
		})
	}
}

func TestReadTextRejectsInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.txt")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x41}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadText(path); err == nil {
		t.Error("expected encoding error")
	}
}

func TestWriteTextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.txt")

	content := "requests>=2.32.3\r\nflask\r\n"
	if err := WriteText(path, content, true); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw[:3]) != "\xef\xbb\xbf" {
		t.Error("expected BOM preserved")
	}
	if string(raw[3:]) != content {
		t.Errorf("content = %q", raw[3:])
	}

	ft, err := ReadText(path)
	if err != nil {
		t.Fatal(err)
	}
	if ft.Text != content || !ft.HasBOM || ft.Newline != "\r\n" {
		t.Errorf("round trip mismatch: %+v", ft)
	}
}

func TestWriteAtomicReplacesWithoutTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := WriteAtomic(path, []byte("new\n")); err != nil {
		t.Fatal(err)
	}

	raw, _ := os.ReadFile(path)
	if string(raw) != "new\n" {
		t.Errorf("content = %q", raw)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestBackupRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var backups []string
	for i := 0; i < 3; i++ {
		b, err := Backup(path, ".bak", true, 2)
		if err != nil {
			t.Fatal(err)
		}
		backups = append(backups, b)
		// mtime granularity on some filesystems needs a nudge.
		time.Sleep(10 * time.Millisecond)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "requirements.txt.bak.*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 retained backups, got %d: %v", len(matches), matches)
	}

	// The first (oldest) backup is the pruned one.
	if _, err := os.Stat(backups[0]); !os.IsNotExist(err) {
		t.Errorf("oldest backup should have been pruned: %s", backups[0])
	}
	for _, b := range backups[1:] {
		if _, err := os.Stat(b); err != nil {
			t.Errorf("recent backup missing: %s", b)
		}
	}
}

func TestBackupUnlimitedRetention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if _, err := Backup(path, ".bak", true, 0); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "requirements.txt.bak.*"))
	if len(matches) != 4 {
		t.Errorf("expected all 4 backups retained, got %d", len(matches))
	}
}

func TestBackupFixedSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	b, err := Backup(path, ".bak", false, 5)
	if err != nil {
		t.Fatal(err)
	}
	if b != path+".bak" {
		t.Errorf("backup path = %s", b)
	}
}

func TestLockExclusionAndTimeout(t *testing.T) {
	lockPath := LockPath(filepath.Join(t.TempDir(), "requirements.txt"))

	l1, err := AcquireLock(lockPath, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := AcquireLock(lockPath, 150*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("second acquire should time out, got %v", err)
	}

	l1.Release()

	l2, err := AcquireLock(lockPath, time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l2.Release()
}
