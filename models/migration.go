package models

import (
	"log"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&CatalogEntry{},
		&ReconcileRun{}, &ReconcileEntryError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
