// Package sqlite implements narrator storage on SQLite.
package sqlite
