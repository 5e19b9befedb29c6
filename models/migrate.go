package models

import (
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
)

// MigrateTable auto-migrates the ledger schema. Call after the DB is connected.
func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		return
	}
	err := db.AutoMigrate(
		&DailyBalance{},
		&DomainEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		config.GetLogger().Error("auto-migrate failed: " + err.Error())
	}
}
