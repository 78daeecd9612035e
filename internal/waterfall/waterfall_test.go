package waterfall

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/capalloc-api/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func twoPartners() []types.Partner {
	return []types.Partner{
		{
			PartnerID:           "P1",
			PartnerType:         TypeGeneral,
			OwnershipPercentage: dec("0.6"),
			CapitalContributed:  dec("600000"),
		},
		{
			PartnerID:           "P2",
			PartnerType:         TypeLimited,
			OwnershipPercentage: dec("0.4"),
			CapitalContributed:  dec("400000"),
		},
	}
}

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{input: "return_of_capital", expected: KindReturnOfCapital},
		{input: "PREFERRED_RETURN", expected: KindPreferredReturn},
		{input: " pro_rata ", expected: KindProRata},
		{input: "Catch_Up", expected: KindCatchUp},
		{input: "promote", expected: KindPromote},
		{input: "clawback", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := NormalizeKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestDistributeReturnOfCapital(t *testing.T) {
	steps := []types.WaterfallStep{{Kind: "return_of_capital"}}

	result, err := Distribute(dec("1000000"), steps, twoPartners())
	require.NoError(t, err)

	assert.True(t, result.PerPartner["P1"].Equal(dec("600000")), "P1 got %s", result.PerPartner["P1"])
	assert.True(t, result.PerPartner["P2"].Equal(dec("400000")), "P2 got %s", result.PerPartner["P2"])
	assert.True(t, result.Remaining.IsZero(), "remaining %s", result.Remaining)
}

func TestDistributeReturnOfCapitalShortfall(t *testing.T) {
	// Pool covers P1's capital and only part of P2's. Order matters.
	steps := []types.WaterfallStep{{Kind: "return_of_capital"}}

	result, err := Distribute(dec("700000"), steps, twoPartners())
	require.NoError(t, err)

	assert.True(t, result.PerPartner["P1"].Equal(dec("600000")))
	assert.True(t, result.PerPartner["P2"].Equal(dec("100000")))
	assert.True(t, result.Remaining.IsZero())
}

func TestDistributePreferredReturnThenProRata(t *testing.T) {
	partners := []types.Partner{
		{
			PartnerID:               "GP",
			PartnerType:             TypeGeneral,
			OwnershipPercentage:     dec("0.5"),
			CapitalContributed:      dec("0"),
		},
		{
			PartnerID:               "LP",
			PartnerType:             TypeLimited,
			OwnershipPercentage:     dec("0.5"),
			CapitalContributed:      dec("1000"),
			ReceivesPreferredReturn: true,
		},
	}
	steps := []types.WaterfallStep{
		{Kind: "preferred_return", Rate: dec("0.08")},
		{Kind: "pro_rata"},
	}

	result, err := Distribute(dec("100.00"), steps, partners)
	require.NoError(t, err)

	// 1000 x 8% = 80 preferred, then 20 split 50/50.
	assert.True(t, result.PerPartner["LP"].Equal(dec("90.00")), "LP got %s", result.PerPartner["LP"])
	assert.True(t, result.PerPartner["GP"].Equal(dec("10.00")), "GP got %s", result.PerPartner["GP"])
	assert.True(t, result.Remaining.IsZero())

	require.Len(t, result.Trace.Steps, 2)
	assert.True(t, result.Trace.Steps[0].Distributed.Equal(dec("80.00")))
	assert.True(t, result.Trace.Steps[1].Distributed.Equal(dec("20.00")))
}

func TestDistributePreferredReturnCappedAtPool(t *testing.T) {
	partners := []types.Partner{
		{
			PartnerID:               "LP",
			PartnerType:             TypeLimited,
			OwnershipPercentage:     dec("1"),
			CapitalContributed:      dec("1000000"),
			ReceivesPreferredReturn: true,
		},
	}
	steps := []types.WaterfallStep{{Kind: "preferred_return", Rate: dec("0.08")}}

	result, err := Distribute(dec("5000"), steps, partners)
	require.NoError(t, err)

	assert.True(t, result.PerPartner["LP"].Equal(dec("5000")))
	assert.True(t, result.Remaining.IsZero())
}

func TestDistributePartnerRateFallback(t *testing.T) {
	// A zero step rate falls back to the partner's own preferred rate.
	partners := []types.Partner{
		{
			PartnerID:               "LP",
			PartnerType:             TypeLimited,
			OwnershipPercentage:     dec("1"),
			CapitalContributed:      dec("1000"),
			ReceivesPreferredReturn: true,
			PreferredReturnRate:     dec("0.06"),
		},
	}
	steps := []types.WaterfallStep{{Kind: "preferred_return"}}

	result, err := Distribute(dec("500"), steps, partners)
	require.NoError(t, err)

	assert.True(t, result.PerPartner["LP"].Equal(dec("60.00")), "LP got %s", result.PerPartner["LP"])
}

func TestDistributePromoteSequentialDecrement(t *testing.T) {
	// Two promote recipients: the second takes its share of the pool the
	// first one already reduced.
	partners := []types.Partner{
		{PartnerID: "A", PartnerType: TypeGeneral, OwnershipPercentage: dec("0.5"), ReceivesPromote: true},
		{PartnerID: "B", PartnerType: TypeGeneral, OwnershipPercentage: dec("0.5"), ReceivesPromote: true},
	}
	steps := []types.WaterfallStep{{Kind: "promote", Percentage: dec("0.2")}}

	result, err := Distribute(dec("1000"), steps, partners)
	require.NoError(t, err)

	assert.True(t, result.PerPartner["A"].Equal(dec("200.00")), "A got %s", result.PerPartner["A"])
	assert.True(t, result.PerPartner["B"].Equal(dec("160.00")), "B got %s", result.PerPartner["B"])
	assert.True(t, result.Remaining.Equal(dec("640.00")))
}

func TestDistributeProRataResidualCents(t *testing.T) {
	// 100.00 over three equal owners cannot split evenly. The extra cent
	// goes to the largest remainder, ties broken by partner order.
	partners := []types.Partner{
		{PartnerID: "A", PartnerType: TypeLimited, OwnershipPercentage: dec("0.3333")},
		{PartnerID: "B", PartnerType: TypeLimited, OwnershipPercentage: dec("0.3333")},
		{PartnerID: "C", PartnerType: TypeLimited, OwnershipPercentage: dec("0.3333")},
	}
	steps := []types.WaterfallStep{{Kind: "pro_rata"}}

	result, err := Distribute(dec("100.00"), steps, partners)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, amount := range result.PerPartner {
		sum = sum.Add(amount)
	}
	assert.True(t, sum.Equal(dec("100.00")), "sum %s", sum)
	assert.True(t, result.Remaining.IsZero())

	// All remainders tie, so the single residual cent lands on the first
	// partner.
	assert.True(t, result.PerPartner["A"].Equal(dec("33.34")), "A got %s", result.PerPartner["A"])
	assert.True(t, result.PerPartner["B"].Equal(dec("33.33")), "B got %s", result.PerPartner["B"])
	assert.True(t, result.PerPartner["C"].Equal(dec("33.33")), "C got %s", result.PerPartner["C"])
}

func TestDistributeProRataZeroOwnershipDegenerate(t *testing.T) {
	partners := []types.Partner{
		{PartnerID: "A", PartnerType: TypeLimited, OwnershipPercentage: decimal.Zero},
	}
	steps := []types.WaterfallStep{{Kind: "pro_rata"}}

	result, err := Distribute(dec("100.00"), steps, partners)
	require.NoError(t, err)

	assert.True(t, result.PerPartner["A"].IsZero())
	assert.True(t, result.Remaining.Equal(dec("100.00")))
	require.Len(t, result.Trace.Steps, 1)
	assert.True(t, result.Trace.Steps[0].Degenerate)
}

func TestDistributeZeroAndNegativeProceeds(t *testing.T) {
	steps := []types.WaterfallStep{
		{Kind: "return_of_capital"},
		{Kind: "pro_rata"},
	}

	for _, proceeds := range []string{"0", "-50000"} {
		result, err := Distribute(dec(proceeds), steps, twoPartners())
		require.NoError(t, err)
		assert.True(t, result.PerPartner["P1"].IsZero())
		assert.True(t, result.PerPartner["P2"].IsZero())
		assert.Empty(t, result.Trace.Steps, "no steps run when the pool starts empty")
	}
}

func TestDistributeUnknownKind(t *testing.T) {
	steps := []types.WaterfallStep{{Kind: "hurdle"}}

	_, err := Distribute(dec("1000"), steps, twoPartners())
	assert.Error(t, err)
}

func TestDistributeConservation(t *testing.T) {
	// Full four-tier waterfall: whatever the mix, distributed plus
	// remaining equals the pool exactly.
	partners := []types.Partner{
		{
			PartnerID:           "GP",
			PartnerType:         TypeGeneral,
			OwnershipPercentage: dec("0.2"),
			CapitalContributed:  dec("100000"),
			ReceivesPromote:     true,
		},
		{
			PartnerID:               "LP1",
			PartnerType:             TypeLimited,
			OwnershipPercentage:     dec("0.5"),
			CapitalContributed:      dec("500000"),
			ReceivesPreferredReturn: true,
		},
		{
			PartnerID:               "LP2",
			PartnerType:             TypeLimited,
			OwnershipPercentage:     dec("0.3"),
			CapitalContributed:      dec("300000"),
			ReceivesPreferredReturn: true,
		},
	}
	steps := []types.WaterfallStep{
		{Kind: "return_of_capital"},
		{Kind: "preferred_return", Rate: dec("0.08")},
		{Kind: "catch_up", Percentage: dec("0.5")},
		{Kind: "promote", Percentage: dec("0.2")},
		{Kind: "pro_rata"},
	}

	for _, proceeds := range []string{"100000", "900000.07", "1234567.89", "5000000"} {
		total := dec(proceeds)
		result, err := Distribute(total, steps, partners)
		require.NoError(t, err)

		sum := decimal.Zero
		for _, amount := range result.PerPartner {
			sum = sum.Add(amount)
		}
		assert.True(t, sum.Add(result.Remaining).Equal(total),
			"proceeds %s: sum %s + remaining %s", proceeds, sum, result.Remaining)

		// Every trace step conserves too.
		for _, st := range result.Trace.Steps {
			stepSum := decimal.Zero
			for _, amount := range st.PerPartner {
				stepSum = stepSum.Add(amount)
			}
			assert.True(t, stepSum.Equal(st.Distributed),
				"step %s: per-partner sum %s vs distributed %s", st.Kind, stepSum, st.Distributed)
		}
	}
}

func TestDistributeMonotonicityInCapitalContributed(t *testing.T) {
	// With proceeds fixed, raising one partner's contributed capital never
	// decreases that partner's return-of-capital distribution.
	steps := []types.WaterfallStep{{Kind: "return_of_capital"}}

	for _, proceeds := range []string{"500000", "700000", "1500000"} {
		total := dec(proceeds)
		previous := decimal.Zero
		for _, capital := range []string{"100000", "400000", "600000", "900000", "2000000"} {
			partners := []types.Partner{
				{
					PartnerID:           "P1",
					PartnerType:         TypeGeneral,
					OwnershipPercentage: dec("0.6"),
					CapitalContributed:  dec(capital),
				},
				{
					PartnerID:           "P2",
					PartnerType:         TypeLimited,
					OwnershipPercentage: dec("0.4"),
					CapitalContributed:  dec("400000"),
				},
			}

			result, err := Distribute(total, steps, partners)
			require.NoError(t, err)

			require.Len(t, result.Trace.Steps, 1)
			got := result.Trace.Steps[0].PerPartner["P1"]
			assert.True(t, got.GreaterThanOrEqual(previous),
				"proceeds %s: capital %s paid %s, less than %s at lower capital",
				proceeds, capital, got, previous)
			previous = got
		}
	}
}

func TestDistributeMonotonicity(t *testing.T) {
	// A bigger pool never pays anyone strictly less.
	steps := []types.WaterfallStep{
		{Kind: "return_of_capital"},
		{Kind: "preferred_return", Rate: dec("0.08")},
		{Kind: "pro_rata"},
	}
	partners := twoPartners()

	small, err := Distribute(dec("800000"), steps, partners)
	require.NoError(t, err)
	large, err := Distribute(dec("1200000"), steps, partners)
	require.NoError(t, err)

	for _, p := range partners {
		assert.True(t, large.PerPartner[p.PartnerID].GreaterThanOrEqual(small.PerPartner[p.PartnerID]),
			"%s: %s < %s", p.PartnerID, large.PerPartner[p.PartnerID], small.PerPartner[p.PartnerID])
	}
}
