// Package basis allocates a purchased-interest basis step-up across
// partnership assets by relative fair value (Section 743(b) adjustments
// under a Section 754 election).
package basis

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/money"
	"github.com/ksred/capalloc-api/internal/types"
	"github.com/ksred/capalloc-api/pkg/response"
)

// Adjustment is the result of allocating a basis step-up across assets.
type Adjustment struct {
	TotalAdjustment decimal.Decimal            `json:"total_adjustment"`
	PerAsset        map[string]decimal.Decimal `json:"asset_adjustments"`
	NewBasis        map[string]decimal.Decimal `json:"new_basis"`
	// Degenerate is set when total fair value is zero and nothing can be
	// allocated; the adjustment is all-zero rather than an error.
	Degenerate bool `json:"degenerate,omitempty"`
}

// AllocateStepUp spreads totalAdjustment across assets proportional to each
// asset's share of total fair market value. A zero total fair value yields
// an all-zero allocation, flagged as degenerate.
func AllocateStepUp(totalAdjustment decimal.Decimal, assets []types.Asset) *Adjustment {
	adj := &Adjustment{
		TotalAdjustment: money.Round(totalAdjustment),
		PerAsset:        make(map[string]decimal.Decimal, len(assets)),
		NewBasis:        make(map[string]decimal.Decimal, len(assets)),
	}

	totalFMV := decimal.Zero
	for _, asset := range assets {
		totalFMV = totalFMV.Add(asset.FairMarketValue)
	}

	if totalFMV.Sign() <= 0 {
		if adj.TotalAdjustment.Sign() != 0 {
			log.Warn().
				Str("component", "basis").
				Str("total_adjustment", adj.TotalAdjustment.StringFixed(2)).
				Msg("zero total fair value, basis step-up cannot be allocated")
			adj.Degenerate = true
		}
		for _, asset := range assets {
			adj.PerAsset[asset.AssetID] = decimal.Zero
			adj.NewBasis[asset.AssetID] = money.Round(asset.TaxBasis)
		}
		return adj
	}

	for _, asset := range assets {
		share := money.Round(adj.TotalAdjustment.Mul(asset.FairMarketValue).Div(totalFMV))
		adj.PerAsset[asset.AssetID] = share
		adj.NewBasis[asset.AssetID] = money.Round(asset.TaxBasis.Add(share))
	}

	return adj
}

// Calculate743b computes the total Section 743(b) adjustment for a
// transferred interest (outside basis over inside basis, scaled by the
// interest transferred) and allocates it across the partnership's assets.
func Calculate743b(purchasePrice, insideBasis, transferredInterest decimal.Decimal, assets []types.Asset) *Adjustment {
	total := purchasePrice.Sub(insideBasis).Mul(transferredInterest)
	return AllocateStepUp(total, assets)
}

// AdjustmentRequest is the API payload for a basis step-up calculation.
type AdjustmentRequest struct {
	PurchasePrice       decimal.Decimal `json:"purchase_price"`
	InsideBasis         decimal.Decimal `json:"inside_basis"`
	TransferredInterest decimal.Decimal `json:"transferred_interest"`
	Assets              []types.Asset   `json:"assets"`
}

// AdjustmentResponse wraps an Adjustment for the API.
type AdjustmentResponse struct {
	PartnershipID string      `json:"partnership_id"`
	Adjustment    *Adjustment `json:"adjustment"`
	Timestamp     time.Time   `json:"timestamp"`
}

// GinHandlers contains HTTP handlers for basis adjustment endpoints
type GinHandlers struct{}

func NewGinHandlers() *GinHandlers {
	return &GinHandlers{}
}

// AdjustmentHandler handles POST requests to allocate a basis step-up.
// URL parameter: partnership_id. The calculation is pure; nothing is
// persisted.
func (h *GinHandlers) AdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		var req AdjustmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		if !money.IsFraction(req.TransferredInterest) {
			response.BadRequest(c, "transferred_interest must be a fraction in [0,1]")
			return
		}

		adjustment := Calculate743b(req.PurchasePrice, req.InsideBasis, req.TransferredInterest, req.Assets)

		response.Success(c, &AdjustmentResponse{
			PartnershipID: partnershipID,
			Adjustment:    adjustment,
			Timestamp:     time.Now(),
		})
	}
}
