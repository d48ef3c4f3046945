// Package config provides database connection configuration for the example
// application, with one constructor per supported database access layer
// (pgx pool, standard library sql.DB, sqlx).
package config
