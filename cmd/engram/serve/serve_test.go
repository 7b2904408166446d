package servecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/papercomputeco/engram/cmd/engram/serve"
)

var _ = Describe("NewServeCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))
	})

	It("rejects positional arguments", func() {
		cmd := servecmder.NewServeCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("registers the listen flag from the registry", func() {
		cmd := servecmder.NewServeCmd()
		flag := cmd.Flags().Lookup("listen")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("l"))
		Expect(flag.DefValue).To(Equal(":8080"))
	})

	It("defaults registry flags from the default config", func() {
		cmd := servecmder.NewServeCmd()

		storage := cmd.Flags().Lookup("storage-provider")
		Expect(storage).NotTo(BeNil())
		Expect(storage.DefValue).To(Equal("sqlite"))

		tokens := cmd.Flags().Lookup("window-tokens")
		Expect(tokens).NotTo(BeNil())
		Expect(tokens.DefValue).To(Equal("8192"))

		dims := cmd.Flags().Lookup("embedding-dimensions")
		Expect(dims).NotTo(BeNil())
		Expect(dims.DefValue).To(Equal("768"))

		events := cmd.Flags().Lookup("events-provider")
		Expect(events).NotTo(BeNil())
		Expect(events.DefValue).To(Equal("nop"))
	})

	It("mounts the MCP endpoint by default", func() {
		cmd := servecmder.NewServeCmd()
		flag := cmd.Flags().Lookup("mcp")
		Expect(flag).NotTo(BeNil())
		Expect(flag.DefValue).To(Equal("true"))
	})

	It("restores the previous session by default", func() {
		cmd := servecmder.NewServeCmd()
		flag := cmd.Flags().Lookup("no-restore")
		Expect(flag).NotTo(BeNil())
		Expect(flag.DefValue).To(Equal("false"))
	})
})
