package partnership

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/types"
)

// Partnership is the governing entity record. The agreement-level
// compliance flags live here because the engine needs them on every run.
type Partnership struct {
	gorm.Model           `json:"-"`
	PartnershipID        string          `gorm:"uniqueIndex" json:"partnership_id"`
	Name                 string          `json:"name"`
	EIN                  string          `json:"ein,omitempty"`
	EntityType           string          `json:"entity_type"` // PARTNERSHIP, LLC
	TaxYearEnd           string          `json:"tax_year_end"` // MM-DD
	HasDRO               bool            `json:"has_deficit_restoration_obligation"`
	HasQIO               bool            `json:"has_qualified_income_offset"`
	Section754Election   bool            `json:"section_754_election"`
	OwnershipDiscrepancy decimal.Decimal `gorm:"type:numeric(5,4)" json:"ownership_discrepancy"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Partner is one partner's interest in a partnership.
type Partner struct {
	gorm.Model              `json:"-"`
	PartnerID               string          `gorm:"uniqueIndex" json:"partner_id"`
	PartnershipID           string          `gorm:"index" json:"partnership_id"`
	Name                    string          `json:"name"`
	PartnerType             string          `json:"partner_type"` // GENERAL, LIMITED, MANAGING_MEMBER
	OwnershipPercentage     decimal.Decimal `gorm:"type:numeric(5,4)" json:"ownership_percentage"`
	ProfitSharingPercentage decimal.Decimal `gorm:"type:numeric(5,4)" json:"profit_sharing_percentage"`
	LossSharingPercentage   decimal.Decimal `gorm:"type:numeric(5,4)" json:"loss_sharing_percentage"`
	CapitalContributed      decimal.Decimal `gorm:"type:numeric(15,2)" json:"capital_contributed_to_date"`
	ReceivesPromote         bool            `json:"receives_promote"`
	ReceivesPreferredReturn bool            `json:"receives_preferred_return"`
	PreferredReturnRate     decimal.Decimal `gorm:"type:numeric(5,4)" json:"preferred_return_rate"`
	Status                  string          `json:"status"` // ACTIVE, WITHDRAWN
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Snapshot converts the stored partner row to the engine's input shape.
func (p *Partner) Snapshot() types.Partner {
	return types.Partner{
		PartnerID:               p.PartnerID,
		Name:                    p.Name,
		PartnerType:             p.PartnerType,
		OwnershipPercentage:     p.OwnershipPercentage,
		ProfitSharingPercentage: p.ProfitSharingPercentage,
		LossSharingPercentage:   p.LossSharingPercentage,
		CapitalContributed:      p.CapitalContributed,
		ReceivesPromote:         p.ReceivesPromote,
		ReceivesPreferredReturn: p.ReceivesPreferredReturn,
		PreferredReturnRate:     p.PreferredReturnRate,
	}
}

// CreateRequest is the API payload for creating a partnership with its
// partners and agreement flags.
type CreateRequest struct {
	Name               string          `json:"name" binding:"required"`
	EIN                string          `json:"ein,omitempty"`
	EntityType         string          `json:"entity_type,omitempty"`
	TaxYearEnd         string          `json:"tax_year_end,omitempty"`
	HasDRO             bool            `json:"has_deficit_restoration_obligation"`
	HasQIO             bool            `json:"has_qualified_income_offset"`
	Section754Election bool            `json:"section_754_election"`
	Partners           []types.Partner `json:"partners" binding:"required"`
}

// Response is the API shape of a partnership with its partners.
type Response struct {
	Partnership Partnership `json:"partnership"`
	Partners    []Partner   `json:"partners"`
}
