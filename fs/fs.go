// Package appfs embeds the migrations and templates the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations/*.sql templates/web/*.gohtml templates/email/* static/*
var FS embed.FS

const (
	WebTemplatesDir   = "templates/web"
	EmailTemplatesDir = "templates/email"
	StaticDir         = "static"
)
