package main

import (
	"os"

	servecmder "github.com/papercomputeco/engram/cmd/engram/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "engramapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Path to the .engram directory (default: nearest .engram)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
