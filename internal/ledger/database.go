package ledger

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetAccountsByPartnership retrieves all capital accounts for a partnership.
func (d *Database) GetAccountsByPartnership(partnershipID string) ([]CapitalAccount, error) {
	var accounts []CapitalAccount
	if err := d.db.Where("partnership_id = ?", partnershipID).
		Order("partner_id ASC").
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch capital accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount retrieves one partner's capital account.
func (d *Database) GetAccount(partnershipID, partnerID string) (*CapitalAccount, error) {
	var account CapitalAccount
	if err := d.db.Where("partnership_id = ? AND partner_id = ?", partnershipID, partnerID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetOrCreateAccount fetches a partner's account, creating a zero-balance
// account if none exists yet.
func (d *Database) GetOrCreateAccount(partnershipID, partnerID string) (*CapitalAccount, error) {
	account, err := d.GetAccount(partnershipID, partnerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch capital account: %w", err)
	}

	account = &CapitalAccount{
		PartnershipID: partnershipID,
		PartnerID:     partnerID,
	}
	if err := d.db.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create capital account: %w", err)
	}
	return account, nil
}

// ApplyTransaction saves the updated accounts and the audit-trail record in
// a single transaction, so a failed write leaves no partial mutation.
func (d *Database) ApplyTransaction(accounts []*CapitalAccount, txn *CapitalTransaction) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, account := range accounts {
		if err := tx.Save(account).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save capital account: %w", err)
		}
	}

	if err := tx.Create(txn).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save capital transaction: %w", err)
	}

	return tx.Commit().Error
}

// SaveAccountAndTransaction persists one updated account and its audit
// record on the database handle as given; callers supply the transaction
// scope.
func (d *Database) SaveAccountAndTransaction(account *CapitalAccount, txn *CapitalTransaction) error {
	if err := d.db.Save(account).Error; err != nil {
		return fmt.Errorf("failed to save capital account: %w", err)
	}
	if err := d.db.Create(txn).Error; err != nil {
		return fmt.Errorf("failed to save capital transaction: %w", err)
	}
	return nil
}

// HasRunTransaction reports whether a partner's allocation from the given
// run is already recorded on the audit trail.
func (d *Database) HasRunTransaction(runID, partnerID string) (bool, error) {
	var count int64
	if err := d.db.Model(&CapitalTransaction{}).
		Where("run_id = ? AND partner_id = ?", runID, partnerID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check posted allocations: %w", err)
	}
	return count > 0, nil
}

// GetTransactionsByPartnership retrieves the audit trail for a partnership.
func (d *Database) GetTransactionsByPartnership(partnershipID string) ([]CapitalTransaction, error) {
	var transactions []CapitalTransaction
	if err := d.db.Where("partnership_id = ?", partnershipID).
		Order("created_at ASC").
		Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch capital transactions: %w", err)
	}
	return transactions, nil
}
