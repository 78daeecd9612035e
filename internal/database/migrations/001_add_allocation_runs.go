package migrations

import (
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/allocation"
)

// AddAllocationRuns creates the allocation runs table and required indexes
func AddAllocationRuns(db *gorm.DB) error {
	if err := db.AutoMigrate(&allocation.Run{}); err != nil {
		return err
	}

	// Add indexes for better query performance
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for the posting processor's unposted-run scan
		`CREATE INDEX IF NOT EXISTS idx_runs_status_created_at
		 ON runs(status, created_at)`,

		// Composite index for latest-run-per-partnership lookups
		`CREATE INDEX IF NOT EXISTS idx_runs_partnership_created_at
		 ON runs(partnership_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
