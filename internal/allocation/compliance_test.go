package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ksred/capalloc-api/internal/types"
)

func compliancePartners() []types.Partner {
	return []types.Partner{
		{PartnerID: "GP", PartnerType: "GENERAL"},
		{PartnerID: "LP", PartnerType: "LIMITED"},
	}
}

func TestValidateComplianceAllClear(t *testing.T) {
	targets := map[string]decimal.Decimal{"GP": dec("100"), "LP": dec("200")}

	result := ValidateCompliance(targets, compliancePartners(), AgreementFlags{}, true)

	assert.True(t, result.CapitalAccountMaintenance)
	assert.True(t, result.LiquidationConsistency)
	assert.False(t, result.DeficitRestoration)
	assert.True(t, result.SubstantialEconomicEffect)
	assert.Empty(t, result.DeficitPartners)
}

func TestValidateComplianceDeficitWithoutProtection(t *testing.T) {
	// Even a one-cent deficit fails the test when the agreement carries
	// neither a DRO nor a QIO.
	targets := map[string]decimal.Decimal{"GP": dec("-0.01"), "LP": dec("200")}

	result := ValidateCompliance(targets, compliancePartners(), AgreementFlags{}, true)

	assert.False(t, result.SubstantialEconomicEffect)
	assert.Equal(t, []string{"GP"}, result.DeficitPartners)
}

func TestValidateComplianceDeficitWithDRO(t *testing.T) {
	targets := map[string]decimal.Decimal{"GP": dec("-5000"), "LP": dec("200")}

	result := ValidateCompliance(targets, compliancePartners(), AgreementFlags{HasDRO: true}, true)

	assert.True(t, result.DeficitRestoration)
	assert.True(t, result.SubstantialEconomicEffect)
	assert.Empty(t, result.DeficitPartners)
}

func TestValidateComplianceDeficitWithQIO(t *testing.T) {
	targets := map[string]decimal.Decimal{"GP": dec("-5000"), "LP": dec("200")}

	result := ValidateCompliance(targets, compliancePartners(), AgreementFlags{HasQIO: true}, true)

	assert.True(t, result.DeficitRestoration)
	assert.True(t, result.SubstantialEconomicEffect)
}

func TestValidateComplianceMultipleDeficitsInPartnerOrder(t *testing.T) {
	partners := []types.Partner{
		{PartnerID: "C"},
		{PartnerID: "A"},
		{PartnerID: "B"},
	}
	targets := map[string]decimal.Decimal{
		"A": dec("-1"),
		"B": dec("10"),
		"C": dec("-2"),
	}

	result := ValidateCompliance(targets, partners, AgreementFlags{}, true)

	assert.False(t, result.SubstantialEconomicEffect)
	assert.Equal(t, []string{"C", "A"}, result.DeficitPartners)
}

func TestValidateComplianceConservationFailure(t *testing.T) {
	targets := map[string]decimal.Decimal{"GP": dec("100"), "LP": dec("200")}

	result := ValidateCompliance(targets, compliancePartners(), AgreementFlags{HasDRO: true}, false)

	assert.False(t, result.LiquidationConsistency)
	assert.False(t, result.SubstantialEconomicEffect)
	assert.True(t, result.CapitalAccountMaintenance)
}
