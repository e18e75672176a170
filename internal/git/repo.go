// Package git provides read-only repository detection used to label run
// logs with the repo and branch the worker operates on.
package git

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// Info describes the repository containing a working directory.
type Info struct {
	Root   string
	Branch string
}

// Detect opens the repository containing workDir. Returns an error when the
// directory is not inside a git repository.
func Detect(workDir string) (*Info, error) {
	r, err := git.PlainOpenWithOptions(workDir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open git repo at %s: %w", workDir, err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repo worktree: %w", err)
	}

	branch := "detached"
	if head, err := r.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	return &Info{Root: wt.Filesystem.Root(), Branch: branch}, nil
}

// Label renders the info as "repo@branch" for log headers.
func (i *Info) Label() string {
	return fmt.Sprintf("%s@%s", filepath.Base(i.Root), i.Branch)
}
