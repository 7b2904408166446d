// Package api provides an HTTP API server for feeding and querying the
// working-memory engine.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// MCP is an optional handler mounted at /mcp, the streamable HTTP
	// endpoint of the MCP server. Nil disables the mount.
	MCP http.Handler
}
