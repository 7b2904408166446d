package backfillcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	backfillcmder "github.com/papercomputeco/engram/cmd/engram/backfill"
	"github.com/papercomputeco/engram/pkg/config"
)

var _ = Describe("NewBackfillCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := backfillcmder.NewBackfillCmd()
		Expect(cmd.Use).To(Equal("backfill"))
	})

	It("rejects positional arguments", func() {
		cmd := backfillcmder.NewBackfillCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("has sqlite and dry-run flags", func() {
		cmd := backfillcmder.NewBackfillCmd()

		sqlite := cmd.Flags().Lookup("sqlite")
		Expect(sqlite).NotTo(BeNil())
		Expect(sqlite.Shorthand).To(Equal("s"))

		dryRun := cmd.Flags().Lookup("dry-run")
		Expect(dryRun).NotTo(BeNil())
		Expect(dryRun.DefValue).To(Equal("false"))
	})
})

var _ = Describe("Backfill command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "engram-backfill-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.MkdirAll(filepath.Join(tmpDir, ".engram"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	saveConfig := func(cfg *config.Config) {
		cfger, err := config.NewConfiger("")
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		ExpectWithOffset(1, cfger.SaveConfig(cfg)).To(Succeed())
	}

	It("refuses to run against a non-persistent content store", func() {
		cfg := config.NewDefaultConfig()
		cfg.Storage.Provider = "inmemory"
		saveConfig(cfg)

		cmd := backfillcmder.NewBackfillCmd()
		cmd.SetArgs([]string{})
		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("not persistent"))
	})

	It("refuses to run without a persistent vector store", func() {
		cfg, err := config.PresetConfig("sqlite")
		Expect(err).NotTo(HaveOccurred())
		cfg.VectorStore.Provider = "none"
		saveConfig(cfg)

		cmd := backfillcmder.NewBackfillCmd()
		cmd.SetArgs([]string{})
		err = cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("shared index"))
	})

	It("dry-runs against an empty sqlite store", func() {
		cfg, err := config.PresetConfig("sqlite")
		Expect(err).NotTo(HaveOccurred())
		saveConfig(cfg)

		cmd := backfillcmder.NewBackfillCmd()
		cmd.SetArgs([]string{"--dry-run"})
		Expect(cmd.Execute()).To(Succeed())

		// The database defaults into the .engram directory.
		_, err = os.Stat(filepath.Join(tmpDir, ".engram", "engram.sqlite"))
		Expect(err).NotTo(HaveOccurred())
	})
})
