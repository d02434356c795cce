// Package db holds the goose migrations, embedded so the binary carries its schema.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
