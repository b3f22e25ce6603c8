// Package web holds the committee pages and their assets, compiled into
// the binary.
package web

import "embed"

// TemplatesFS holds the page templates and the schedule partial.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the htmx event handlers.
//
//go:embed static/*
var StaticFS embed.FS
