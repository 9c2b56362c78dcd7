// Package appfs embeds the files the binaries need at runtime: migrations & templates.
package appfs

import "embed"

//go:embed migrations templates
var FS embed.FS

// MigrationsDir returns the migrations directory of the given database engine.
func MigrationsDir(engine string) string {
	return "migrations/" + engine
}

const EmailTemplatesDir = "templates/email"
