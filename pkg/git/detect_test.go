package git_test

import (
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/git"
)

var _ = Describe("RepoName", func() {
	It("falls back to the directory base name outside a repository", func() {
		dir, err := os.MkdirTemp("", "engram-git-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		Expect(git.RepoName(dir)).To(Equal(filepath.Base(dir)))
	})

	It("returns the repository name for a nested directory", func() {
		if _, err := exec.LookPath("git"); err != nil {
			Skip("git not installed")
		}

		root, err := os.MkdirTemp("", "engram-git-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)

		Expect(exec.Command("git", "-C", root, "init", "-q").Run()).To(Succeed())

		nested := filepath.Join(root, "internal", "deep")
		Expect(os.MkdirAll(nested, 0o755)).To(Succeed())

		Expect(git.RepoName(nested)).To(Equal(filepath.Base(root)))
	})
})
