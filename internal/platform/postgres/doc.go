// Package postgres implements the store interfaces and the task store on
// PostgreSQL through database/sql with the pgx driver. It also embeds the
// schema migrations.
package postgres
