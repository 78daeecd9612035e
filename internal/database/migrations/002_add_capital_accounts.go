package migrations

import (
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/ledger"
)

// AddCapitalAccounts creates the capital account and transaction tables and
// the indexes backing audit-trail queries
func AddCapitalAccounts(db *gorm.DB) error {
	if err := db.AutoMigrate(&ledger.CapitalAccount{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&ledger.CapitalTransaction{}); err != nil {
		return err
	}

	indexes := []string{
		// Audit trail is read per partnership in time order
		`CREATE INDEX IF NOT EXISTS idx_capital_transactions_partnership_created_at
		 ON capital_transactions(partnership_id, created_at)`,

		// Posted allocations are looked up by run
		`CREATE INDEX IF NOT EXISTS idx_capital_transactions_run_id
		 ON capital_transactions(run_id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
