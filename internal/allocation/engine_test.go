package allocation

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/capalloc-api/internal/types"
)

func validRequest() types.AllocationRequest {
	return types.AllocationRequest{
		PartnershipID: "PTR_test",
		Partners: []types.Partner{
			{
				PartnerID:               "GP",
				PartnerType:             "GENERAL",
				OwnershipPercentage:     dec("0.4"),
				ProfitSharingPercentage: dec("0.4"),
				LossSharingPercentage:   dec("0.4"),
				CapitalContributed:      dec("400000"),
				ReceivesPromote:         true,
			},
			{
				PartnerID:               "LP",
				PartnerType:             "LIMITED",
				OwnershipPercentage:     dec("0.6"),
				ProfitSharingPercentage: dec("0.6"),
				LossSharingPercentage:   dec("0.6"),
				CapitalContributed:      dec("600000"),
				ReceivesPreferredReturn: true,
			},
		},
		AgreementTerms: types.AgreementTerms{
			DistributionWaterfall: []types.WaterfallStep{
				{Kind: "return_of_capital"},
				{Kind: "preferred_return", Rate: dec("0.08")},
				{Kind: "pro_rata"},
			},
			HasDRO: false,
			HasQIO: false,
		},
		NetIncome:     dec("200000"),
		TotalProceeds: dec("1200000"),
		CurrentBalances: map[string]decimal.Decimal{
			"GP": dec("400000"),
			"LP": dec("600000"),
		},
		ApplyTrueUp: true,
	}
}

func TestCalculateHappyPath(t *testing.T) {
	result, err := Calculate(validRequest(), DefaultConfig())
	require.NoError(t, err)

	// 1,200,000: capital back (400k/600k), 48k preferred to LP, then
	// 152,000 pro rata 40/60.
	assert.True(t, result.TargetBalances["GP"].Equal(dec("460800")), "GP target %s", result.TargetBalances["GP"])
	assert.True(t, result.TargetBalances["LP"].Equal(dec("739200")), "LP target %s", result.TargetBalances["LP"])

	// Targets minus current balances reconcile to net income with no
	// true-up needed.
	assert.False(t, result.TrueUpApplied)
	assert.True(t, result.RequiredAllocations["GP"].Equal(dec("60800")))
	assert.True(t, result.RequiredAllocations["LP"].Equal(dec("139200")))

	assert.True(t, result.Compliance.SubstantialEconomicEffect)
	assert.True(t, result.Compliance.LiquidationConsistency)
	assert.Equal(t, MethodTargetCapitalAccount, result.CalculationMethod)
	assert.True(t, result.OwnershipDiscrepancy.IsZero())
	assert.True(t, result.CalculatedAt.IsZero(), "engine must not stamp wall-clock time")
}

func TestCalculateIdempotent(t *testing.T) {
	req := validRequest()

	first, err := Calculate(req, DefaultConfig())
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Calculate(req, DefaultConfig())
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.JSONEq(t, string(firstJSON), string(againJSON), "run %d differs", i)
	}
}

func TestCalculateMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.AllocationRequest)
		field  string
	}{
		{
			name:   "no partners",
			mutate: func(r *types.AllocationRequest) { r.Partners = nil },
			field:  "partners",
		},
		{
			name:   "missing partner id",
			mutate: func(r *types.AllocationRequest) { r.Partners[0].PartnerID = "" },
			field:  "partners[0].partner_id",
		},
		{
			name:   "duplicate partner id",
			mutate: func(r *types.AllocationRequest) { r.Partners[1].PartnerID = "GP" },
			field:  "partners[1].partner_id",
		},
		{
			name:   "ownership above one",
			mutate: func(r *types.AllocationRequest) { r.Partners[0].OwnershipPercentage = dec("1.5") },
			field:  "partners[0].ownership_percentage",
		},
		{
			name:   "negative ownership",
			mutate: func(r *types.AllocationRequest) { r.Partners[0].OwnershipPercentage = dec("-0.1") },
			field:  "partners[0].ownership_percentage",
		},
		{
			name:   "negative capital",
			mutate: func(r *types.AllocationRequest) { r.Partners[0].CapitalContributed = dec("-1") },
			field:  "partners[0].capital_contributed",
		},
		{
			name: "unknown step kind",
			mutate: func(r *types.AllocationRequest) {
				r.AgreementTerms.DistributionWaterfall[0].Kind = "hurdle"
			},
			field: "agreement_terms.distribution_waterfall[0].kind",
		},
		{
			name: "step rate above one",
			mutate: func(r *types.AllocationRequest) {
				r.AgreementTerms.DistributionWaterfall[1].Rate = dec("8")
			},
			field: "agreement_terms.distribution_waterfall[1].rate",
		},
		{
			name: "balance for unknown partner",
			mutate: func(r *types.AllocationRequest) {
				r.CurrentBalances["GHOST"] = dec("100")
			},
			field: "current_balances",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := Calculate(req, DefaultConfig())
			require.Error(t, err)

			var malformed *MalformedInputError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestCalculateReconciliationFailure(t *testing.T) {
	req := validRequest()
	req.ApplyTrueUp = false
	req.NetIncome = dec("150000") // targets imply 200,000 of income

	_, err := Calculate(req, DefaultConfig())
	require.Error(t, err)

	var recErr *ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.True(t, recErr.Discrepancy.Equal(dec("50000")))
}

func TestCalculateTrueUpFlagged(t *testing.T) {
	req := validRequest()
	req.NetIncome = dec("150000")

	result, err := Calculate(req, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, result.TrueUpApplied)

	sum := decimal.Zero
	for _, amount := range result.RequiredAllocations {
		sum = sum.Add(amount)
	}
	assert.True(t, sum.Equal(dec("150000")), "sum %s", sum)
}

func TestCalculateOwnershipDiscrepancySurfaced(t *testing.T) {
	req := validRequest()
	req.Partners[0].OwnershipPercentage = dec("0.45")

	result, err := Calculate(req, DefaultConfig())
	require.NoError(t, err)

	assert.True(t, result.OwnershipDiscrepancy.Equal(dec("0.05")),
		"discrepancy %s", result.OwnershipDiscrepancy)
}

func TestCalculateZeroProceeds(t *testing.T) {
	req := validRequest()
	req.TotalProceeds = decimal.Zero
	req.NetIncome = dec("-1000000")

	result, err := Calculate(req, DefaultConfig())
	require.NoError(t, err)

	// Everyone's target is zero, so the whole book value is allocated away
	// as loss.
	assert.True(t, result.TargetBalances["GP"].IsZero())
	assert.True(t, result.TargetBalances["LP"].IsZero())
	assert.True(t, result.RequiredAllocations["GP"].Equal(dec("-400000")))
	assert.True(t, result.RequiredAllocations["LP"].Equal(dec("-600000")))
}
