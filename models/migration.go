package models

import (
	"bitbucket.org/mmdatafocus/catalog_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Product{},
		&SpecKey{},
		&SpecValue{},
		&SKU{},
		&SKUAttribute{},
		&InventoryBatch{},
		&MonthlySummary{},
		&History{},
	)
}
