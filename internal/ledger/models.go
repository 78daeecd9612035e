package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CapitalAccount is one partner's Section 704(b) book capital account for
// the current period. Only the ledger mutates these rows; the allocation
// engine reads balances and returns results.
type CapitalAccount struct {
	gorm.Model        `json:"-"`
	PartnershipID     string          `gorm:"uniqueIndex:idx_capital_accounts_partner" json:"partnership_id"`
	PartnerID         string          `gorm:"uniqueIndex:idx_capital_accounts_partner" json:"partner_id"`
	BeginningBalance  decimal.Decimal `gorm:"type:numeric(15,2)" json:"beginning_balance"`
	Contributions     decimal.Decimal `gorm:"type:numeric(15,2)" json:"contributions"`
	Distributions     decimal.Decimal `gorm:"type:numeric(15,2)" json:"distributions"`
	IncomeAllocations decimal.Decimal `gorm:"type:numeric(15,2)" json:"income_allocations"`
	LossAllocations   decimal.Decimal `gorm:"type:numeric(15,2)" json:"loss_allocations"`
	OtherAdjustments  decimal.Decimal `gorm:"type:numeric(15,2)" json:"other_adjustments"`
	EndingBalance     decimal.Decimal `gorm:"type:numeric(15,2)" json:"ending_balance"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CapitalTransaction is the audit-trail record of one capital account
// mutation.
type CapitalTransaction struct {
	gorm.Model      `json:"-"`
	TransactionID   string          `gorm:"uniqueIndex" json:"transaction_id"`
	PartnershipID   string          `gorm:"index" json:"partnership_id"`
	PartnerID       string          `gorm:"index" json:"partner_id"`
	TransactionType string          `json:"transaction_type"` // CONTRIBUTION, DISTRIBUTION, ALLOCATION, REVALUATION
	AllocationType  string          `json:"allocation_type,omitempty"` // INCOME or LOSS for ALLOCATION
	Amount          decimal.Decimal `gorm:"type:numeric(15,2)" json:"amount"`
	EffectiveDate   time.Time       `json:"effective_date"`
	RunID           string          `gorm:"index" json:"run_id,omitempty"` // set when posted from an allocation run
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TransactionRequest is the API payload for recording a transaction.
type TransactionRequest struct {
	TransactionType string          `json:"transaction_type" binding:"required"`
	PartnerID       string          `json:"partner_id"`
	Amount          decimal.Decimal `json:"amount"`
	AllocationType  string          `json:"allocation_type,omitempty"`
	EffectiveDate   *time.Time      `json:"effective_date,omitempty"`
}

// TransactionResponse reports the result of a processed transaction.
type TransactionResponse struct {
	TransactionID   string                     `json:"transaction_id"`
	PartnershipID   string                     `json:"partnership_id"`
	TransactionType string                     `json:"transaction_type"`
	UpdatedBalances map[string]decimal.Decimal `json:"updated_balances"`
	Timestamp       time.Time                  `json:"timestamp"`
}
