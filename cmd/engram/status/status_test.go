package statuscmder_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	statuscmder "github.com/papercomputeco/engram/cmd/engram/status"
	"github.com/papercomputeco/engram/pkg/dotdir"
)

var _ = Describe("NewStatusCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := statuscmder.NewStatusCmd()
		Expect(cmd.Use).To(Equal("status"))
	})

	It("accepts zero arguments", func() {
		cmd := statuscmder.NewStatusCmd()
		err := cmd.Args(cmd, []string{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects any arguments", func() {
		cmd := statuscmder.NewStatusCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("has an --api-target flag", func() {
		cmd := statuscmder.NewStatusCmd()
		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
	})
})

var _ = Describe("Status command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "engram-status-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("runs without error when no .engram directory exists", func() {
		cmd := statuscmder.NewStatusCmd()
		// An unroutable target keeps the run offline regardless of what is
		// listening on localhost.
		cmd.SetArgs([]string{"--api-target", "http://127.0.0.1:1"})
		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
	})

	It("runs without error when session state exists but the server is down", func() {
		engramDir := filepath.Join(tmpDir, ".engram")
		err := os.MkdirAll(engramDir, 0o755)
		Expect(err).NotTo(HaveOccurred())

		state := &dotdir.SessionState{
			Hashes: []string{"abc123def456", "fedcba654321"},
		}

		data, err := json.MarshalIndent(state, "", "  ")
		Expect(err).NotTo(HaveOccurred())
		err = os.WriteFile(filepath.Join(engramDir, "session.json"), data, 0o644)
		Expect(err).NotTo(HaveOccurred())

		cmd := statuscmder.NewStatusCmd()
		cmd.SetArgs([]string{"--api-target", "http://127.0.0.1:1"})
		err = cmd.Execute()
		Expect(err).NotTo(HaveOccurred())
	})
})
