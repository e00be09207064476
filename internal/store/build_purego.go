//go:build !sqlite_cgo

package store

// Pure Go SQLite; no C toolchain required.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver in use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
