// Package web holds the browser viewer's static files.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var staticFiles embed.FS

// Static returns the viewer files rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
