// Package store declares the persistence interfaces of the tracker (users,
// projects, issues, attachments and the issue deadline registry) together
// with their sentinel errors and the transaction helper. The Postgres
// implementations live in internal/platform/postgres.
package store
