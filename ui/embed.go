// Package ui carries the embedded templates, translations and static assets.
package ui

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templates embed.FS

//go:embed locales
var locales embed.FS

//go:embed assets
var assets embed.FS

// Templates is rooted at the templates directory ("layouts/main.html", "login.html", ...)
func Templates() fs.FS {
	return sub(templates, "templates")
}

// Locales holds active.<lang>.toml
func Locales() fs.FS {
	return sub(locales, "locales")
}

// Assets holds app.css and app.js
func Assets() fs.FS {
	return sub(assets, "assets")
}

func sub(fsys fs.FS, dir string) fs.FS {
	s, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return s
}
