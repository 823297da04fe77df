// Package env binds the engine to a concrete Python environment: pip
// as the installed-version source, virtualenv detection, and git
// working-tree state.
package env

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"reqsync/internal/parse"
)

// PipProvider reads installed package versions from pip. When Upgrade
// is set, the environment is upgraded from the requirement file before
// versions are read.
type PipProvider struct {
	// Python is the interpreter to invoke pip through. Empty means
	// "python3" with a "python" fallback.
	Python string

	// Upgrade runs "pip install --upgrade -r <path>" first.
	Upgrade bool

	// UpgradePath is the requirement file passed to the upgrade.
	UpgradePath string

	// UpgradeTimeout bounds the upgrade run. Zero means no limit.
	UpgradeTimeout time.Duration

	// PipArgs are extra arguments forwarded to pip install. Only
	// known-safe flags are forwarded; anything else is an error.
	PipArgs []string
}

// pipListEntry is one record of "pip list --format=json".
type pipListEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// allowedPipArgs are the pip install flags callers may forward. Flags
// take their value either inline ("--timeout=30") or as the next
// argument.
var allowedPipArgs = map[string]bool{
	"--index-url":       true,
	"--extra-index-url": true,
	"--trusted-host":    true,
	"--proxy":           true,
	"--timeout":         true,
	"--retries":         true,
	"--no-cache-dir":    true,
	"--pre":             true,
	"--user":            true,
}

// InstalledVersions queries pip for the installed distribution set,
// keyed by normalized project name.
func (p *PipProvider) InstalledVersions(ctx context.Context) (map[string]string, error) {
	python, err := p.interpreter()
	if err != nil {
		return nil, err
	}

	if p.Upgrade {
		if err := p.upgrade(ctx, python); err != nil {
			return nil, err
		}
	}

	cmd := exec.CommandContext(ctx, python, "-m", "pip", "list", "--format=json", "--disable-pip-version-check")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pip list failed: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	return ParsePipList(stdout.Bytes())
}

// ParsePipList decodes pip's JSON listing into a normalized-name to
// version map.
func ParsePipList(data []byte) (map[string]string, error) {
	var entries []pipListEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding pip list output: %w", err)
	}

	versions := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		versions[parse.NormalizeName(e.Name)] = e.Version
	}
	return versions, nil
}

func (p *PipProvider) upgrade(ctx context.Context, python string) error {
	if p.UpgradePath == "" {
		return errors.New("upgrade requested without a requirement file")
	}

	if p.UpgradeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.UpgradeTimeout)
		defer cancel()
	}

	extra, err := FilterPipArgs(p.PipArgs)
	if err != nil {
		return err
	}

	args := append([]string{"-m", "pip", "install", "--upgrade", "-r", p.UpgradePath, "--disable-pip-version-check"}, extra...)
	cmd := exec.CommandContext(ctx, python, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install --upgrade failed: %w", err)
	}
	return nil
}

// FilterPipArgs validates forwarded pip flags against the allowlist.
func FilterPipArgs(args []string) ([]string, error) {
	var out []string
	expectValue := false
	for _, arg := range args {
		if expectValue {
			out = append(out, arg)
			expectValue = false
			continue
		}

		flag := arg
		inlineValue := false
		if i := strings.IndexByte(arg, '='); i >= 0 {
			flag = arg[:i]
			inlineValue = true
		}
		if !allowedPipArgs[flag] {
			return nil, fmt.Errorf("pip argument %q is not allowed", arg)
		}

		out = append(out, arg)
		if !inlineValue && flagTakesValue(flag) {
			expectValue = true
		}
	}
	if expectValue {
		return nil, errors.New("pip argument list ends with a flag expecting a value")
	}
	return out, nil
}

func flagTakesValue(flag string) bool {
	switch flag {
	case "--pre", "--no-cache-dir", "--user":
		return false
	}
	return true
}

func (p *PipProvider) interpreter() (string, error) {
	if p.Python != "" {
		return p.Python, nil
	}
	for _, candidate := range []string{"python3", "python"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no python interpreter found on PATH")
}

// VenvActive reports whether a virtualenv or conda environment is
// active in the current process environment.
func VenvActive() bool {
	if os.Getenv("VIRTUAL_ENV") != "" {
		return true
	}
	if prefix := os.Getenv("CONDA_PREFIX"); prefix != "" && os.Getenv("CONDA_DEFAULT_ENV") != "base" {
		return true
	}
	return false
}

// RepoDirty reports whether dir sits inside a git repository with
// uncommitted changes. A directory outside any repository is not dirty.
func RepoDirty(dir string) (bool, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return false, nil
		}
		return false, fmt.Errorf("opening repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("reading worktree status: %w", err)
	}
	return !status.IsClean(), nil
}
