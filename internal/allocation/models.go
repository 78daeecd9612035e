package allocation

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/types"
)

// Run statuses.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusPosted    = "POSTED"
)

// Run is the persisted record of one allocation run. The inputs and outputs
// are stored as JSON snapshots and the record is immutable once written,
// except for the COMPLETED → POSTED transition applied by the posting
// processor. A failed run is recorded with its failure reason and no
// capital account is touched.
type Run struct {
	gorm.Model    `json:"-"`
	RunID         string          `gorm:"uniqueIndex" json:"run_id"`
	PartnershipID string          `gorm:"index" json:"partnership_id"`
	Status        string          `gorm:"index" json:"status"` // COMPLETED, FAILED, POSTED
	NetIncome     decimal.Decimal `gorm:"type:numeric(15,2)" json:"net_income"`
	TotalProceeds decimal.Decimal `gorm:"type:numeric(15,2)" json:"total_proceeds"`
	TrueUpApplied bool            `json:"true_up_applied"`
	RequestJSON   string          `gorm:"type:text" json:"-"` // input snapshot
	ResultJSON    string          `gorm:"type:text" json:"-"` // output snapshot
	FailureReason string          `json:"failure_reason,omitempty"`
	PostedAt      *time.Time      `json:"posted_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RunResponse is the API shape of an allocation run.
type RunResponse struct {
	RunID         string                  `json:"run_id"`
	PartnershipID string                  `json:"partnership_id"`
	Status        string                  `json:"status"`
	Result        *types.AllocationResult `json:"result,omitempty"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	Timestamp     time.Time               `json:"timestamp"`
}

// ComplianceReport is the API shape of a partnership's latest compliance
// position.
type ComplianceReport struct {
	PartnershipID string                 `json:"partnership_id"`
	RunID         string                 `json:"run_id"`
	Compliance    types.ComplianceResult `json:"compliance"`
	HasDRO        bool                   `json:"has_deficit_restoration_obligation"`
	HasQIO        bool                   `json:"has_qualified_income_offset"`
	GeneratedAt   time.Time              `json:"generated_at"`
}
