// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations assets assets/templates/email/_*
var FS embed.FS

const (
	MigrationsDir       = "migrations"
	EmailTemplatesDir   = "assets/templates/email"
	CommonPasswordsFile = "assets/common-passwords.txt"
)
