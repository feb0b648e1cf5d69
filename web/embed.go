// Package web embeds the single-page frontend.
package web

import "embed"

// TemplatesFS embeds the index page template.
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the script and stylesheet.
//go:embed static/*
var StaticFS embed.FS
