package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Backup copies path to a backup file and returns the backup path.
// With timestamped true, the name embeds a collision-safe timestamp and
// older timestamped backups beyond keepLast are pruned (keepLast 0
// disables pruning). Otherwise a single fixed-suffix backup is
// overwritten in place.
func Backup(path, suffix string, timestamped bool, keepLast int) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot back up %s: %w", path, err)
	}

	var backup string
	if timestamped {
		backup = uniqueTimestampedPath(path, suffix)
	} else {
		backup = path + suffix
	}

	if err := CopyFile(path, backup); err != nil {
		return "", fmt.Errorf("creating backup: %w", err)
	}

	if timestamped && keepLast > 0 {
		pruneBackups(path, suffix, keepLast)
	}

	return backup, nil
}

// uniqueTimestampedPath builds "<name><suffix>.<stamp>" next to path,
// appending a counter when two backups land in the same microsecond.
func uniqueTimestampedPath(path, suffix string) string {
	stamp := time.Now().Format("20060102-150405.000000")
	// Keep the historical flat stamp form without the sub-second dot.
	stamp = stamp[:15] + "-" + stamp[16:]

	base := path + suffix + "." + stamp
	backup := base
	for counter := 1; ; counter++ {
		if _, err := os.Stat(backup); os.IsNotExist(err) {
			return backup
		}
		backup = fmt.Sprintf("%s-%02d", base, counter)
	}
}

// pruneBackups removes the oldest timestamped backups of path beyond
// keepLast, newest first by modification time.
func pruneBackups(path, suffix string, keepLast int) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	matches, err := filepath.Glob(filepath.Join(dir, name+suffix+".*"))
	if err != nil {
		return
	}

	type backupEntry struct {
		path  string
		mtime time.Time
	}
	var entries []backupEntry
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, backupEntry{path: m, mtime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].mtime.Equal(entries[j].mtime) {
			// Stamp order breaks mtime ties from fast successive runs.
			return entries[i].path > entries[j].path
		}
		return entries[i].mtime.After(entries[j].mtime)
	})

	for _, stale := range entries[min(keepLast, len(entries)):] {
		if err := os.Remove(stale.path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unable to prune old backup %s: %v\n", stale.path, err)
		}
	}
}
