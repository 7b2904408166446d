package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/dotdir"
)

var _ = Describe("Session", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-session-test-*")
		Expect(err).NotTo(HaveOccurred())

		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadSessionState", func() {
		It("returns nil when no session exists", func() {
			state, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("round-trips a saved session", func() {
			saved := &dotdir.SessionState{
				Hashes: []string{"aaa111", "bbb222", "ccc333"},
			}
			Expect(m.SaveSession(tmpDir, saved)).To(Succeed())

			state, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).NotTo(BeNil())
			Expect(state.Hashes).To(Equal([]string{"aaa111", "bbb222", "ccc333"}))
			Expect(state.UpdatedAt).NotTo(BeZero())
		})

		It("rejects a corrupt session file", func() {
			path := filepath.Join(tmpDir, "session.json")
			Expect(os.WriteFile(path, []byte("{not json"), 0o644)).To(Succeed())

			_, err := m.LoadSessionState(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing session state"))
		})
	})

	Describe("SaveSession", func() {
		It("overwrites a previous session", func() {
			Expect(m.SaveSession(tmpDir, &dotdir.SessionState{Hashes: []string{"old"}})).To(Succeed())
			Expect(m.SaveSession(tmpDir, &dotdir.SessionState{Hashes: []string{"new1", "new2"}})).To(Succeed())

			state, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Hashes).To(Equal([]string{"new1", "new2"}))
		})

		It("rejects a nil state", func() {
			err := m.SaveSession(tmpDir, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ClearSession", func() {
		It("removes the session file", func() {
			Expect(m.SaveSession(tmpDir, &dotdir.SessionState{Hashes: []string{"x"}})).To(Succeed())
			Expect(m.ClearSession(tmpDir)).To(Succeed())

			state, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("tolerates a missing session file", func() {
			Expect(m.ClearSession(tmpDir)).To(Succeed())
		})
	})
})
