package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"reqsync/internal/fileio"
	"reqsync/internal/resolve"
	"reqsync/internal/textdiff"
)

// Sync runs one full synchronization pass: guards, graph resolution,
// planning, and (outside check/dry-run) committed writes.
//
// On guard refusals and write failures the returned Result is still
// populated so callers can report what was planned; the error carries
// the exit code.
func Sync(ctx context.Context, opts Options, deps Deps) (*Result, error) {
	if !opts.Policy.Valid() {
		return nil, newError(ExitGenericError, "unknown policy %q", opts.Policy)
	}

	if !opts.SystemOK && deps.VenvActive != nil && !deps.VenvActive() {
		return nil, newError(ExitSystemPythonBlocked,
			"refusing to run outside a virtualenv; pass --system-ok to override")
	}

	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, newError(ExitGenericError, "resolving path %s: %v", opts.Path, err)
	}

	if !opts.AllowDirty && deps.RepoDirty != nil {
		dirty, err := deps.RepoDirty(filepath.Dir(root))
		if err != nil {
			return nil, newError(ExitGenericError, "checking repository state: %v", err)
		}
		if dirty {
			return nil, newError(ExitDirtyRepoBlocked,
				"repository has uncommitted changes; pass --allow-dirty to override")
		}
	}

	if deps.Provider == nil {
		return nil, newError(ExitProviderFailed, "no installed-version provider configured")
	}
	installed, err := deps.Provider.InstalledVersions(ctx)
	if err != nil {
		return nil, &Error{Code: ExitProviderFailed, Message: fmt.Sprintf("querying installed versions: %v", err), Err: err}
	}

	graph, err := resolve.Resolve(root, opts.FollowIncludes)
	if err != nil {
		return nil, structuralError(err)
	}

	result, err := Plan(graph, installed, opts)
	if err != nil {
		return nil, err
	}

	if opts.Check {
		if result.Changed && (opts.ShowDiff || opts.DryRun) {
			result.Diff = makeDiff(result)
		}
		return result, hashRefusalError(result)
	}

	if opts.DryRun {
		if result.Changed && opts.ShowDiff {
			result.Diff = makeDiff(result)
		}
		return result, hashRefusalError(result)
	}

	if result.Changed {
		if err := commit(result, opts); err != nil {
			return result, err
		}
	}

	if result.Changed && opts.ShowDiff {
		result.Diff = makeDiff(result)
	}
	if len(result.WriteFailures) > 0 {
		return result, newError(ExitWriteFailed,
			"write failed and backups restored: %s", strings.Join(result.WriteFailures, "; "))
	}
	return result, hashRefusalError(result)
}

// commit executes the plan file by file. Each file is locked, backed up,
// then atomically replaced; a failed file is restored from its backup
// and processing continues with the remaining files. A lock timeout
// aborts the whole run.
func commit(result *Result, opts Options) error {
	for _, fr := range result.Files {
		if !fr.ChangedText() || fr.HashRefused {
			continue
		}

		if err := commitFile(fr, result, opts); err != nil {
			if errors.Is(err, fileio.ErrLockTimeout) {
				return &Error{Code: ExitLockTimeout, Message: err.Error(), Err: err}
			}
			result.WriteFailures = append(result.WriteFailures,
				fmt.Sprintf("%s: %v", fr.File, err))
		}
	}
	return nil
}

func commitFile(fr *FileResult, result *Result, opts Options) error {
	lock, err := fileio.AcquireLock(fileio.LockPath(fr.File), opts.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	backup, err := fileio.Backup(fr.File, opts.BackupSuffix, opts.TimestampedBackups, opts.BackupKeepLast)
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	result.BackupPaths = append(result.BackupPaths, backup)

	if err := fileio.WriteText(fr.File, fr.NewText, fr.HasBOM); err != nil {
		if restoreErr := fileio.CopyFile(backup, fr.File); restoreErr != nil {
			return fmt.Errorf("%v (restore from %s also failed: %v)", err, backup, restoreErr)
		}
		return fmt.Errorf("%w (restored from backup)", err)
	}

	return nil
}

func makeDiff(result *Result) string {
	var pairs []textdiff.Input
	for _, fr := range result.Files {
		if !fr.ChangedText() {
			continue
		}
		pairs = append(pairs, textdiff.Input{
			Path: fr.File,
			Old:  fr.OriginalText,
			New:  fr.NewText,
		})
	}
	return textdiff.Unified(pairs)
}

// structuralError maps graph resolution failures onto exit codes.
func structuralError(err error) error {
	var notFound *resolve.NotFoundError
	if errors.As(err, &notFound) {
		return &Error{Code: ExitMissingFile, Message: err.Error(), Err: err}
	}
	var encoding *resolve.EncodingError
	if errors.As(err, &encoding) {
		return &Error{Code: ExitParseError, Message: err.Error(), Err: err}
	}
	return &Error{Code: ExitGenericError, Message: err.Error(), Err: err}
}

// hashRefusalError surfaces the hash guard as the run outcome while the
// per-file results remain reported.
func hashRefusalError(result *Result) error {
	if len(result.HashRefused) == 0 {
		return nil
	}
	return newError(ExitHashesPresent,
		"hash-pinned files refused (pass --allow-hashes to proceed): %s",
		strings.Join(result.HashRefused, ", "))
}
