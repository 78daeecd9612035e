package database

import (
	"fmt"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/database/migrations"
	"github.com/ksred/capalloc-api/internal/partnership"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("DB_PATH")
	if path == "" {
		path = "capalloc.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddAllocationRuns(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddCapitalAccounts(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&partnership.Partnership{},
		&partnership.Partner{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
