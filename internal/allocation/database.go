package allocation

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateRun persists a new allocation run record.
func (d *Database) CreateRun(run *Run) error {
	return d.db.Create(run).Error
}

// GetRun retrieves a run by its external ID.
func (d *Database) GetRun(runID string) (*Run, error) {
	var run Run
	if err := d.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetLatestCompletedRun retrieves the most recent successful run for a
// partnership, whether or not it has been posted yet.
func (d *Database) GetLatestCompletedRun(partnershipID string) (*Run, error) {
	var run Run
	if err := d.db.Where("partnership_id = ? AND status IN ?", partnershipID,
		[]string{StatusCompleted, StatusPosted}).
		Order("created_at DESC").
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetUnpostedRuns retrieves completed runs whose allocations have not been
// posted to capital accounts yet.
func (d *Database) GetUnpostedRuns() ([]Run, error) {
	var runs []Run
	if err := d.db.Where("status = ?", StatusCompleted).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch unposted runs: %w", err)
	}
	return runs, nil
}

// MarkPosted transitions a run from COMPLETED to POSTED.
func (d *Database) MarkPosted(run *Run) error {
	now := time.Now()
	run.Status = StatusPosted
	run.PostedAt = &now
	run.UpdatedAt = now
	return d.db.Save(run).Error
}
