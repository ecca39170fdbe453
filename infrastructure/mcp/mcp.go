// Package mcp exposes the scan control surface to Model Context Protocol
// clients. It wraps github.com/felixgeelhaar/mcp-go.
package mcp

import (
	mcpgo "github.com/felixgeelhaar/mcp-go"
)

// Re-export the mcp-go types callers need to configure serving.
type (
	// ServeOption configures request handling on either transport.
	ServeOption = mcpgo.ServeOption

	// HTTPOption configures the HTTP transport.
	HTTPOption = mcpgo.HTTPOption
)

var (
	// WithMiddleware adds middleware to the request handling chain.
	WithMiddleware = mcpgo.WithMiddleware

	WithReadTimeout  = mcpgo.WithReadTimeout
	WithWriteTimeout = mcpgo.WithWriteTimeout

	Recover   = mcpgo.Recover
	RequestID = mcpgo.RequestID
)
