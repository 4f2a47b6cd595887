package repository

import "embed"

// Migrations holds the Postgres schema, applied in file name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"
