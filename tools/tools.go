//go:build tools
// +build tools

// Package tools documents development tool dependencies. These are
// installed globally via `go install` rather than tracked in go.mod
// because nothing at runtime imports them.
package tools

// Development tools:
//
// Air - Live reload while developing the HTTP service
//   Install: go install github.com/air-verse/air@v1.63.0
//   Version: v1.63.0 (pinned 2025-01-01)
//   Docs: https://github.com/air-verse/air
