//go:build sqlite_cgo

package store

// CGO SQLite (github.com/mattn/go-sqlite3), enabled with -tags sqlite_cgo.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver in use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
