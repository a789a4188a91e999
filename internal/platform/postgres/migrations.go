package postgres

import "embed"

// Migrations holds the goose SQL migrations of the schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of the migrations inside Migrations.
const MigrationsDir = "migrations"

// MigrationTableName is the table goose records applied migrations in.
const MigrationTableName = "schema_migrations"
