package allocation

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/types"
)

// AgreementFlags carries the agreement provisions relevant to the
// substantial-economic-effect safe harbor.
type AgreementFlags struct {
	HasDRO bool
	HasQIO bool
}

// ValidateCompliance checks target balances against the three-part
// substantial-economic-effect test and reports four independent booleans,
// so a caller sees exactly which requirement failed.
//
// Capital-account maintenance holds by construction when the ledger is the
// sole balance mutator; conserved carries the caller's re-check of the
// waterfall conservation invariant.
func ValidateCompliance(targetBalances map[string]decimal.Decimal, partners []types.Partner,
	flags AgreementFlags, conserved bool) types.ComplianceResult {

	result := types.ComplianceResult{
		CapitalAccountMaintenance: true,
		LiquidationConsistency:    conserved,
		DeficitRestoration:        flags.HasDRO || flags.HasQIO,
		SubstantialEconomicEffect: true,
	}

	if !conserved {
		log.Warn().
			Str("component", "compliance").
			Msg("waterfall conservation re-check failed, liquidation consistency not satisfied")
		result.SubstantialEconomicEffect = false
	}

	// A deficit capital account is only permissible when the agreement
	// carries a DRO or QIO provision.
	for _, p := range partners {
		balance, ok := targetBalances[p.PartnerID]
		if !ok {
			continue
		}
		if balance.IsNegative() && !result.DeficitRestoration {
			result.SubstantialEconomicEffect = false
			result.DeficitPartners = append(result.DeficitPartners, p.PartnerID)
			log.Warn().
				Str("component", "compliance").
				Str("partner_id", p.PartnerID).
				Str("target_balance", balance.StringFixed(2)).
				Msg("partner would have deficit balance without DRO/QIO")
		}
	}

	return result
}
