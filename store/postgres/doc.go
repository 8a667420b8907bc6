// Package postgres implements boxumco.CredentialStore and boxumco.DeviceStore
// on PostgreSQL through a pgx connection pool.
//
// The schema is managed by the goose migrations embedded in the migrations
// sub-package; call [Migrate] before first use. A user row and its profile
// row are written in one transaction. Devices are keyed by user id and
// cascade with the user.
package postgres
