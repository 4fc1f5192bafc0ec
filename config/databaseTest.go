package config

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ConnectTestDatabase opens an in-memory sqlite database and sets the global
// DB. Package tests use this instead of a real MySQL instance; the schema is
// created by models.MigrateTable the same way as in production.
//
// "cache=shared" keeps one database across the pooled connections so
// concurrent test goroutines see the same tables.
func ConnectTestDatabase() error {
	var err error
	db, err = gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), initConfig())
	if err != nil {
		return err
	}
	// sqlite serializes writers; a single connection avoids spurious
	// SQLITE_BUSY failures in concurrent tests.
	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return nil
}
