// Package appfs exposes the files embedded into the binaries: database migrations,
// email templates and static assets.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* assets/*
var FS embed.FS
