// Package workspace reads uncommitted source changes from a git working tree
// so they can be attached to a saved conversation.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned when path is not inside a git repository.
var ErrNotRepository = errors.New("workspace: not a git repository")

// Change kinds.
const (
	ChangeModified = "modified"
	ChangeAdded    = "added"
	ChangeDeleted  = "deleted"
)

// maxFileSize skips generated or vendored blobs.
const maxFileSize = 1 << 20

var sourceExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".java": true, ".cpp": true,
	".c": true, ".h": true, ".go": true, ".rs": true,
}

// Change is one changed source file.
type Change struct {
	Path       string `json:"path"`
	ChangeType string `json:"change_type"`
	BeforeCode string `json:"before_code"`
	AfterCode  string `json:"after_code"`
}

// DetectChanges compares the working tree at path with HEAD. Only source
// files are reported, sorted by path.
func DetectChanges(path string) ([]Change, error) {
	repo, err := open(path)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	head, err := headTree(repo)
	if err != nil {
		return nil, err
	}
	root := wt.Filesystem.Root()

	paths := make([]string, 0, len(status))
	for p := range status {
		if sourceExtensions[strings.ToLower(filepath.Ext(p))] {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var changes []Change
	for _, p := range paths {
		fs := status[p]
		var c Change
		switch {
		case fs.Worktree == git.Deleted || fs.Staging == git.Deleted:
			c = Change{Path: p, ChangeType: ChangeDeleted, BeforeCode: committed(head, p)}
		case fs.Worktree == git.Untracked || fs.Staging == git.Added:
			after, ok := readFile(root, p)
			if !ok {
				continue
			}
			c = Change{Path: p, ChangeType: ChangeAdded, AfterCode: after}
		case fs.Worktree == git.Modified || fs.Staging == git.Modified:
			after, ok := readFile(root, p)
			if !ok {
				continue
			}
			c = Change{Path: p, ChangeType: ChangeModified, BeforeCode: committed(head, p), AfterCode: after}
		default:
			continue
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// ProjectName returns the base name of the repository root containing path,
// or of path itself when it is not in a repository.
func ProjectName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if repo, err := open(abs); err == nil {
		if wt, err := repo.Worktree(); err == nil {
			return filepath.Base(wt.Filesystem.Root())
		}
	}
	return filepath.Base(abs)
}

func open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return repo, nil
}

// headTree returns nil for a repository without commits.
func headTree(repo *git.Repository) (*object.Tree, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD tree: %w", err)
	}
	return tree, nil
}

func committed(tree *object.Tree, path string) string {
	if tree == nil {
		return ""
	}
	f, err := tree.File(path)
	if err != nil || f.Size > maxFileSize {
		return ""
	}
	s, err := f.Contents()
	if err != nil {
		return ""
	}
	return s
}

func readFile(root, path string) (string, bool) {
	full := filepath.Join(root, filepath.FromSlash(path))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() || info.Size() > maxFileSize {
		return "", false
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", false
	}
	return string(b), true
}
