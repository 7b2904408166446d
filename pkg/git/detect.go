// Package git provides utilities for detecting git repository information.
package git

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// RepoName returns the name of the git repository containing dir.
// It runs "git -C <dir> rev-parse --show-toplevel" and returns the base
// directory name. Outside a repository, or when git is unavailable, it
// falls back to the base name of dir itself.
func RepoName(dir string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err == nil {
		top := strings.TrimSpace(string(out))
		if top != "" {
			return filepath.Base(top)
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	return filepath.Base(abs)
}
