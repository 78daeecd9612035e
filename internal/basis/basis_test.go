package basis

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

func sampleAssets() []types.Asset {
	return []types.Asset{
		{AssetID: "building", FairMarketValue: dec("750000"), TaxBasis: dec("500000")},
		{AssetID: "equipment", FairMarketValue: dec("250000"), TaxBasis: dec("200000")},
	}
}

func TestAllocateStepUpProportional(t *testing.T) {
	adj := AllocateStepUp(dec("100000"), sampleAssets())

	require.False(t, adj.Degenerate)
	assert.True(t, adj.PerAsset["building"].Equal(dec("75000")), "building %s", adj.PerAsset["building"])
	assert.True(t, adj.PerAsset["equipment"].Equal(dec("25000")), "equipment %s", adj.PerAsset["equipment"])
	assert.True(t, adj.NewBasis["building"].Equal(dec("575000")))
	assert.True(t, adj.NewBasis["equipment"].Equal(dec("225000")))
}

func TestAllocateStepUpNegative(t *testing.T) {
	// A step-down allocates the same way with the sign flipped.
	adj := AllocateStepUp(dec("-40000"), sampleAssets())

	assert.True(t, adj.PerAsset["building"].Equal(dec("-30000")))
	assert.True(t, adj.PerAsset["equipment"].Equal(dec("-10000")))
	assert.True(t, adj.NewBasis["building"].Equal(dec("470000")))
}

func TestAllocateStepUpZeroFMVDegenerate(t *testing.T) {
	assets := []types.Asset{
		{AssetID: "worthless", FairMarketValue: decimal.Zero, TaxBasis: dec("10000")},
	}

	adj := AllocateStepUp(dec("50000"), assets)

	assert.True(t, adj.Degenerate)
	assert.True(t, adj.PerAsset["worthless"].IsZero())
	assert.True(t, adj.NewBasis["worthless"].Equal(dec("10000")))
}

func TestAllocateStepUpZeroAdjustmentNotDegenerate(t *testing.T) {
	assets := []types.Asset{
		{AssetID: "worthless", FairMarketValue: decimal.Zero, TaxBasis: dec("10000")},
	}

	adj := AllocateStepUp(decimal.Zero, assets)

	assert.False(t, adj.Degenerate)
	assert.True(t, adj.PerAsset["worthless"].IsZero())
}

func TestCalculate743b(t *testing.T) {
	// (1,500,000 − 1,100,000) × 25% transferred interest = 100,000.
	adj := Calculate743b(dec("1500000"), dec("1100000"), dec("0.25"), sampleAssets())

	assert.True(t, adj.TotalAdjustment.Equal(dec("100000")), "total %s", adj.TotalAdjustment)
	assert.True(t, adj.PerAsset["building"].Equal(dec("75000")))
	assert.True(t, adj.PerAsset["equipment"].Equal(dec("25000")))
}
