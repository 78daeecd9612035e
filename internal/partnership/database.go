package partnership

import (
	"fmt"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreatePartnershipWithPartners persists the partnership and its partners
// in a single transaction.
func (d *Database) CreatePartnershipWithPartners(p *Partnership, partners []*Partner) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(p).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create partnership: %w", err)
	}

	for _, partner := range partners {
		if err := tx.Create(partner).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create partner: %w", err)
		}
	}

	return tx.Commit().Error
}

// GetPartnership retrieves a partnership by its external ID.
func (d *Database) GetPartnership(partnershipID string) (*Partnership, error) {
	var p Partnership
	if err := d.db.Where("partnership_id = ?", partnershipID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPartnersByPartnership retrieves the partners of a partnership in
// stable insertion order. The order matters: the waterfall iterates
// partners in this sequence.
func (d *Database) GetPartnersByPartnership(partnershipID string) ([]Partner, error) {
	var partners []Partner
	if err := d.db.Where("partnership_id = ?", partnershipID).
		Order("id ASC").
		Find(&partners).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch partners: %w", err)
	}
	return partners, nil
}
