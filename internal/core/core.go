// Package core is the requirement synchronization engine: it plans
// policy-driven rewrites over the resolved file graph and commits them
// with locked, atomic, backup-protected writes.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reqsync/internal/policy"
	"reqsync/internal/resolve"
)

// ExitCode is the stable process exit code for CLI and automation callers.
type ExitCode int

const (
	ExitOK                  ExitCode = 0
	ExitGenericError        ExitCode = 1
	ExitMissingFile         ExitCode = 2
	ExitHashesPresent       ExitCode = 3
	ExitProviderFailed      ExitCode = 4
	ExitParseError          ExitCode = 5
	ExitConstraintConflict  ExitCode = 6 // reserved
	ExitSystemPythonBlocked ExitCode = 7
	ExitDirtyRepoBlocked    ExitCode = 8
	ExitLockTimeout         ExitCode = 9
	ExitWriteFailed         ExitCode = 10
	ExitChangesWouldBeMade  ExitCode = 11
)

// Error is a failure with a stable exit code.
type Error struct {
	Code    ExitCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ExitCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeFor maps any error to its exit code, defaulting to the generic code.
func CodeFor(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ExitGenericError
}

// VersionProvider supplies the normalized-name to version mapping of the
// target environment. Implementations may upgrade the environment first.
type VersionProvider interface {
	InstalledVersions(ctx context.Context) (map[string]string, error)
}

// Deps are the injected external collaborators. A nil guard function
// disables that guard: the engine performs no environment detection of
// its own.
type Deps struct {
	Provider   VersionProvider
	VenvActive func() bool
	RepoDirty  func(dir string) (bool, error)
}

// Options is the immutable option bundle for one sync run.
type Options struct {
	Path              string
	FollowIncludes    bool
	UpdateConstraints bool

	Policy          policy.Policy
	AllowPrerelease bool
	KeepLocal       bool
	Cap             *policy.CapStrategy

	Only    []string
	Exclude []string

	Check    bool
	DryRun   bool
	ShowDiff bool

	BackupSuffix       string
	TimestampedBackups bool
	BackupKeepLast     int
	LockTimeout        time.Duration

	SystemOK    bool
	AllowHashes bool
	AllowDirty  bool
	LastWins    bool
}

// DefaultOptions returns the option bundle defaults for a root path.
func DefaultOptions(path string) Options {
	return Options{
		Path:               path,
		FollowIncludes:     true,
		Policy:             policy.LowerBound,
		BackupSuffix:       ".bak",
		TimestampedBackups: true,
		BackupKeepLast:     5,
		LockTimeout:        15 * time.Second,
		AllowDirty:         true,
	}
}

// Change is one package-line rewrite.
type Change struct {
	File             string
	Package          string
	InstalledVersion string
	OldLine          string
	NewLine          string
}

// Skipped is a requirement line the planner deliberately left alone.
type Skipped struct {
	File    string
	Package string
	Reason  string
}

// Skip reasons reported by the planner, beyond the policy's own.
const (
	ReasonNotInstalled = "not-installed"
	ReasonFiltered     = "filtered"
	ReasonDuplicate    = "superseded-duplicate"
)

// FileResult is the planned outcome for one file.
type FileResult struct {
	File         string
	Role         resolve.Role
	OriginalText string
	NewText      string
	Digest       string // BLAKE3 of NewText
	HasBOM       bool
	HashRefused  bool
	Changes      []Change
}

// ChangedText reports whether the plan rewrites this file.
func (fr *FileResult) ChangedText() bool {
	return fr.OriginalText != fr.NewText
}

// Result is the aggregate outcome of a sync run, immutable once returned.
type Result struct {
	Changed       bool
	Files         []*FileResult
	Changes       []Change
	Skipped       []Skipped
	BackupPaths   []string
	Diff          string
	HashRefused   []string // files refused by the hash guard
	WriteFailures []string
}
