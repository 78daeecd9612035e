package allocation

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/money"
	"github.com/ksred/capalloc-api/internal/types"
	"github.com/ksred/capalloc-api/internal/waterfall"
)

// MethodTargetCapitalAccount identifies the allocation method implemented
// by Calculate.
const MethodTargetCapitalAccount = "target_capital_account"

var one = decimal.NewFromInt(1)

// Calculate runs one target-allocation computation over an immutable input
// snapshot: it models a hypothetical liquidation through the distribution
// waterfall, derives per-partner target balances, backs out the required
// income/loss allocations, reconciles them to net income, and validates the
// substantial-economic-effect test.
//
// The computation is synchronous, deterministic and performs no I/O;
// identical inputs produce identical outputs.
func Calculate(req types.AllocationRequest, cfg Config) (*types.AllocationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("partnership_id", req.PartnershipID).
		Str("component", "allocation_engine").
		Logger()

	logger.Info().
		Int("partners", len(req.Partners)).
		Int("waterfall_steps", len(req.AgreementTerms.DistributionWaterfall)).
		Str("net_income", req.NetIncome.StringFixed(2)).
		Str("total_proceeds", req.TotalProceeds.StringFixed(2)).
		Msg("starting target allocation calculation")

	wf, err := waterfall.Distribute(req.TotalProceeds, req.AgreementTerms.DistributionWaterfall, req.Partners)
	if err != nil {
		return nil, &MalformedInputError{Field: "agreement_terms.distribution_waterfall", Reason: err.Error()}
	}

	targets := DeriveTargets(wf.PerPartner)

	cfg.ApplyTrueUp = req.ApplyTrueUp
	required, trueUpApplied, err := Solve(req.Partners, targets, req.CurrentBalances, req.NetIncome, cfg)
	if err != nil {
		return nil, err
	}

	conserved := verifyConservation(wf)
	compliance := ValidateCompliance(targets, req.Partners, AgreementFlags{
		HasDRO: req.AgreementTerms.HasDRO,
		HasQIO: req.AgreementTerms.HasQIO,
	}, conserved)

	result := &types.AllocationResult{
		PartnershipID:        req.PartnershipID,
		TargetBalances:       targets,
		RequiredAllocations:  required,
		Compliance:           compliance,
		Trace:                wf.Trace,
		OwnershipDiscrepancy: ownershipDiscrepancy(req.Partners),
		TrueUpApplied:        trueUpApplied,
		CalculationMethod:    MethodTargetCapitalAccount,
	}

	logger.Info().
		Bool("true_up_applied", trueUpApplied).
		Bool("substantial_economic_effect", compliance.SubstantialEconomicEffect).
		Str("ownership_discrepancy", result.OwnershipDiscrepancy.String()).
		Msg("target allocation calculation completed")

	return result, nil
}

// validateRequest rejects malformed input before any computation begins.
func validateRequest(req types.AllocationRequest) error {
	if len(req.Partners) == 0 {
		return &MalformedInputError{Field: "partners", Reason: "at least one partner is required"}
	}

	seen := make(map[string]bool, len(req.Partners))
	for i, p := range req.Partners {
		field := fmt.Sprintf("partners[%d]", i)
		if p.PartnerID == "" {
			return &MalformedInputError{Field: field + ".partner_id", Reason: "missing required field"}
		}
		if seen[p.PartnerID] {
			return &MalformedInputError{Field: field + ".partner_id", Reason: "duplicate partner identifier " + p.PartnerID}
		}
		seen[p.PartnerID] = true

		if !money.IsFraction(p.OwnershipPercentage) {
			return &MalformedInputError{Field: field + ".ownership_percentage", Reason: "must be a fraction in [0,1]"}
		}
		if !money.IsFraction(p.ProfitSharingPercentage) {
			return &MalformedInputError{Field: field + ".profit_sharing_percentage", Reason: "must be a fraction in [0,1]"}
		}
		if !money.IsFraction(p.LossSharingPercentage) {
			return &MalformedInputError{Field: field + ".loss_sharing_percentage", Reason: "must be a fraction in [0,1]"}
		}
		if !money.IsFraction(p.PreferredReturnRate) {
			return &MalformedInputError{Field: field + ".preferred_return_rate", Reason: "must be a fraction in [0,1]"}
		}
		if p.CapitalContributed.IsNegative() {
			return &MalformedInputError{Field: field + ".capital_contributed", Reason: "must not be negative"}
		}
	}

	for i, step := range req.AgreementTerms.DistributionWaterfall {
		field := fmt.Sprintf("agreement_terms.distribution_waterfall[%d]", i)
		if _, err := waterfall.NormalizeKind(step.Kind); err != nil {
			return &MalformedInputError{Field: field + ".kind", Reason: err.Error()}
		}
		if !money.IsFraction(step.Rate) {
			return &MalformedInputError{Field: field + ".rate", Reason: "must be a fraction in [0,1]"}
		}
		if !money.IsFraction(step.Percentage) {
			return &MalformedInputError{Field: field + ".percentage", Reason: "must be a fraction in [0,1]"}
		}
	}

	for partnerID := range req.CurrentBalances {
		if !seen[partnerID] {
			return &MalformedInputError{Field: "current_balances", Reason: "balance supplied for unknown partner " + partnerID}
		}
	}

	return nil
}

// verifyConservation re-checks that the sum of distributed amounts plus
// the undistributed remainder equals total proceeds.
func verifyConservation(wf *waterfall.Result) bool {
	sum := decimal.Zero
	for _, amount := range wf.PerPartner {
		sum = sum.Add(amount)
	}
	return sum.Add(wf.Remaining).Equal(wf.Trace.TotalProceeds)
}

// ownershipDiscrepancy reports how far the ownership percentages drift from
// summing to 1. The engine surfaces the deviation, it never silently
// normalizes it away.
func ownershipDiscrepancy(partners []types.Partner) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range partners {
		sum = sum.Add(p.OwnershipPercentage)
	}
	return money.RoundRate(sum.Sub(one))
}
