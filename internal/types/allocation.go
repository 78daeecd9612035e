package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Partner is the per-partner snapshot the engine computes over.
// Percentages are fractions in [0,1]; human-facing values ("8%") are
// converted at the API boundary.
type Partner struct {
	PartnerID               string          `json:"partner_id"`
	Name                    string          `json:"name,omitempty"`
	PartnerType             string          `json:"partner_type"` // GENERAL, LIMITED, MANAGING_MEMBER
	OwnershipPercentage     decimal.Decimal `json:"ownership_percentage"`
	ProfitSharingPercentage decimal.Decimal `json:"profit_sharing_percentage"`
	LossSharingPercentage   decimal.Decimal `json:"loss_sharing_percentage"`
	CapitalContributed      decimal.Decimal `json:"capital_contributed"`
	ReceivesPromote         bool            `json:"receives_promote"`
	ReceivesPreferredReturn bool            `json:"receives_preferred_return"`
	PreferredReturnRate     decimal.Decimal `json:"preferred_return_rate"`
}

// WaterfallStep is one tier of the distribution waterfall. Order in the
// enclosing slice is load-bearing: steps draw from a single shared
// remaining-proceeds pool strictly in sequence.
type WaterfallStep struct {
	Kind       string          `json:"kind"` // RETURN_OF_CAPITAL, PREFERRED_RETURN, CATCH_UP, PROMOTE, PRO_RATA
	Rate       decimal.Decimal `json:"rate,omitempty"`
	Percentage decimal.Decimal `json:"percentage,omitempty"`
}

// AgreementTerms carries the agreement-level inputs to an allocation run.
type AgreementTerms struct {
	DistributionWaterfall []WaterfallStep `json:"distribution_waterfall"`
	HasDRO                bool            `json:"has_deficit_restoration_obligation"`
	HasQIO                bool            `json:"has_qualified_income_offset"`
}

// AllocationRequest is the full input snapshot for one allocation run.
type AllocationRequest struct {
	PartnershipID   string                     `json:"partnership_id"`
	Partners        []Partner                  `json:"partners"`
	AgreementTerms  AgreementTerms             `json:"agreement_terms"`
	NetIncome       decimal.Decimal            `json:"net_income"`
	TotalProceeds   decimal.Decimal            `json:"total_proceeds"`
	CurrentBalances map[string]decimal.Decimal `json:"current_balances"`
	ApplyTrueUp     bool                       `json:"apply_true_up"`
}

// StepTrace records one waterfall step for the audit trail.
type StepTrace struct {
	Kind        string                     `json:"kind"`
	Distributed decimal.Decimal            `json:"distributed"`
	Remaining   decimal.Decimal            `json:"remaining"`
	PerPartner  map[string]decimal.Decimal `json:"per_partner"`
	Degenerate  bool                       `json:"degenerate,omitempty"`
}

// WaterfallTrace is the full audit trail of a hypothetical liquidation.
type WaterfallTrace struct {
	TotalProceeds decimal.Decimal `json:"total_proceeds"`
	Steps         []StepTrace     `json:"steps"`
	Remaining     decimal.Decimal `json:"remaining"`
}

// ComplianceResult reports the substantial-economic-effect test as four
// independent checks, never folded into a single score.
type ComplianceResult struct {
	CapitalAccountMaintenance bool     `json:"capital_account_maintenance"`
	LiquidationConsistency    bool     `json:"liquidation_consistency"`
	DeficitRestoration        bool     `json:"deficit_restoration"`
	SubstantialEconomicEffect bool     `json:"substantial_economic_effect"`
	DeficitPartners           []string `json:"deficit_partners,omitempty"`
}

// AllocationResult is the immutable output of one allocation run.
type AllocationResult struct {
	PartnershipID        string                     `json:"partnership_id"`
	TargetBalances       map[string]decimal.Decimal `json:"target_balances"`
	RequiredAllocations  map[string]decimal.Decimal `json:"required_allocations"`
	Compliance           ComplianceResult           `json:"compliance"`
	Trace                WaterfallTrace             `json:"waterfall_trace"`
	OwnershipDiscrepancy decimal.Decimal            `json:"ownership_discrepancy"`
	TrueUpApplied        bool                       `json:"true_up_applied"`
	CalculationMethod    string                     `json:"calculation_method"`
	CalculatedAt         time.Time                  `json:"calculated_at"`
}

// Asset is a partnership asset used for basis step-up allocation.
type Asset struct {
	AssetID         string          `json:"asset_id"`
	Description     string          `json:"description,omitempty"`
	FairMarketValue decimal.Decimal `json:"fair_market_value"`
	TaxBasis        decimal.Decimal `json:"tax_basis"`
}
