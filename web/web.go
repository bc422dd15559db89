// Package web embeds the viewer page, its Datastar fragments and static assets.
package web

import "embed"

// FS holds templates/ and static/. The server serves from disk instead when
// a web directory is configured.
//
//go:embed templates static
var FS embed.FS
