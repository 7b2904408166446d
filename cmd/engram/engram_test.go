package engramcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	engramcmder "github.com/papercomputeco/engram/cmd/engram"
)

var _ = Describe("NewEngramCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := engramcmder.NewEngramCmd()
		Expect(cmd.Use).To(Equal("engram"))
	})

	It("registers all subcommands", func() {
		cmd := engramcmder.NewEngramCmd()
		cmds := cmd.Commands()
		names := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"serve", "init", "config", "ingest", "recall", "status", "events", "gc", "backfill", "version",
		))
	})

	It("has global debug and config-dir flags", func() {
		cmd := engramcmder.NewEngramCmd()

		debug := cmd.PersistentFlags().Lookup("debug")
		Expect(debug).NotTo(BeNil())
		Expect(debug.Shorthand).To(Equal("d"))

		configDir := cmd.PersistentFlags().Lookup("config-dir")
		Expect(configDir).NotTo(BeNil())
	})

	It("propagates global flags to subcommands", func() {
		cmd := engramcmder.NewEngramCmd()
		cmd.SetArgs([]string{"version", "--debug"})
		Expect(cmd.Execute()).To(Succeed())
	})
})
