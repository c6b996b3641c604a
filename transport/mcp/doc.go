// Package mcp exposes the session API as MCP tools so agents can create,
// join, and play games. It is a thin client: every tool call proxies to the
// REST API, which keeps the MCP surface and the HTTP surface behaviorally
// identical.
package mcp
