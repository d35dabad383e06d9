// Package webui exposes the embedded frontend filesystem.
// It lives at the module root so it can embed the sibling "web/" directory;
// internal/server/embed.go imports it to serve static files.
package webui

import "embed"

// FS is the embedded web directory tree: index.html plus its script and styles.
//
//go:embed web
var FS embed.FS
