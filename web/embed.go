// Package web provides the embedded default site served when no document
// root exists on disk.
//
// The site is a single page with a small WebSocket client for the real-time
// channel, so a fresh checkout has something to open in a browser.
package web

import (
	"embed"
	"io/fs"
)

//go:embed assets/*
var assets embed.FS

// Assets returns the embedded site rooted at its index document.
//
// The filesystem structure is:
//
//	index.html - landing page with inline CSS and JavaScript
func Assets() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		// the embed directive guarantees the directory exists
		panic(err)
	}
	return sub
}
