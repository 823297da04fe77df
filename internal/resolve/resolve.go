// Package resolve builds the include/constraint file graph rooted at a
// requirements file. Traversal order is deterministic declaration
// order; diamond inclusion is deduplicated while true cycles fail hard.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reqsync/internal/fileio"
	"reqsync/internal/parse"
)

// Role is how a file participates in the sync set.
type Role string

const (
	RoleRoot        Role = "root"
	RoleRequirement Role = "requirement"
	RoleConstraint  Role = "constraint"
)

// File is one discovered requirements file with its classified lines.
type File struct {
	Path  string // absolute, symlink-resolved
	Role  Role
	Text  *fileio.FileText
	Lines []parse.Line
}

// Graph is the ordered set of discovered files. Order is root first,
// then linked files in declaration order, depth first.
type Graph struct {
	Files []*File
}

// NotFoundError reports a missing file, attributing the including file.
type NotFoundError struct {
	Path         string
	ReferencedBy string // empty for the root
}

func (e *NotFoundError) Error() string {
	if e.ReferencedBy == "" {
		return fmt.Sprintf("requirements file not found: %s", e.Path)
	}
	return fmt.Sprintf("linked requirements file not found: %s (referenced by %s)", e.Path, e.ReferencedBy)
}

// CycleError reports an include cycle with the full inclusion chain.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "include cycle detected: " + strings.Join(e.Chain, " -> ")
}

// EncodingError reports a file whose bytes could not be decoded.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("unreadable requirements file %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

type resolver struct {
	follow bool
	files  []*File
	index  map[string]*File // canonical path -> file
}

// Resolve loads the graph rooted at rootPath. Include links (-r) are
// followed only when followIncludes is set; constraint links (-c) are
// always discovered so hash and drift scanning covers them.
func Resolve(rootPath string, followIncludes bool) (*Graph, error) {
	root, err := canonicalize(rootPath)
	if err != nil {
		return nil, &NotFoundError{Path: rootPath}
	}

	r := &resolver{follow: followIncludes, index: make(map[string]*File)}
	if err := r.visit(root, RoleRoot, nil); err != nil {
		return nil, err
	}

	return &Graph{Files: r.files}, nil
}

// visit loads one file and walks its links carrying the ancestor chain
// for cycle detection. A file already loaded from another parent is
// deduplicated, keeping the strongest role.
func (r *resolver) visit(path string, role Role, chain []string) error {
	for _, ancestor := range chain {
		if ancestor == path {
			return &CycleError{Chain: append(append([]string{}, chain...), path)}
		}
	}

	if existing, ok := r.index[path]; ok {
		existing.Role = mergeRole(existing.Role, role)
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		refBy := ""
		if len(chain) > 0 {
			refBy = chain[len(chain)-1]
		}
		return &NotFoundError{Path: path, ReferencedBy: refBy}
	}

	text, err := fileio.ReadText(path)
	if err != nil {
		return &EncodingError{Path: path, Err: err}
	}

	file := &File{
		Path:  path,
		Role:  role,
		Text:  text,
		Lines: parse.File(text.Text),
	}
	r.files = append(r.files, file)
	r.index[path] = file

	childChain := append(append([]string{}, chain...), path)
	for _, ref := range parse.FileLinks(file.Lines) {
		if !ref.Constraint && !r.follow {
			continue
		}

		target, err := canonicalize(resolveRelative(path, ref.Path))
		if err != nil {
			return &NotFoundError{Path: resolveRelative(path, ref.Path), ReferencedBy: path}
		}

		childRole := RoleRequirement
		if ref.Constraint {
			childRole = RoleConstraint
		}
		if err := r.visit(target, childRole, childChain); err != nil {
			return err
		}
	}

	return nil
}

// mergeRole keeps the strongest role when the same file is reached both
// as an include and as a constraint: root > requirement > constraint.
func mergeRole(current, discovered Role) Role {
	if current == RoleRoot || discovered == RoleRoot {
		return RoleRoot
	}
	if current == RoleRequirement || discovered == RoleRequirement {
		return RoleRequirement
	}
	return RoleConstraint
}

func resolveRelative(fromFile, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(fromFile), ref)
}

// canonicalize makes the path absolute and resolves symlinks so the
// same file reached via different spellings deduplicates to one node.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Missing files cannot be resolved; report the absolute path.
		return abs, nil
	}
	return resolved, nil
}
