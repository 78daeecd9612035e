// Package waterfall models a hypothetical liquidation of partnership assets
// through an ordered distribution waterfall. Steps draw from a single shared
// remaining-proceeds pool strictly in sequence, and every intermediate
// amount is rounded to penny precision before it is applied, so the
// conservation invariant
//
//	sum(per-partner amounts) + remaining == total proceeds
//
// holds exactly at every step boundary.
package waterfall

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/money"
	"github.com/ksred/capalloc-api/internal/types"
)

// Waterfall step kinds.
const (
	KindReturnOfCapital = "RETURN_OF_CAPITAL"
	KindPreferredReturn = "PREFERRED_RETURN"
	KindCatchUp         = "CATCH_UP"
	KindPromote         = "PROMOTE"
	KindProRata         = "PRO_RATA"
)

// Partner types.
const (
	TypeGeneral        = "GENERAL"
	TypeLimited        = "LIMITED"
	TypeManagingMember = "MANAGING_MEMBER"
)

// NormalizeKind maps an input step kind to its canonical form. Agreement
// documents use lower-snake forms like "return_of_capital".
func NormalizeKind(kind string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case KindReturnOfCapital:
		return KindReturnOfCapital, nil
	case KindPreferredReturn:
		return KindPreferredReturn, nil
	case KindCatchUp:
		return KindCatchUp, nil
	case KindPromote:
		return KindPromote, nil
	case KindProRata:
		return KindProRata, nil
	default:
		return "", fmt.Errorf("unknown waterfall step kind: %q", kind)
	}
}

// Result holds the outcome of one waterfall computation.
type Result struct {
	PerPartner map[string]decimal.Decimal
	Remaining  decimal.Decimal
	Trace      types.WaterfallTrace
}

// Distribute runs the ordered waterfall steps against totalProceeds and
// returns per-partner hypothetical liquidation proceeds plus an audit trace.
// Zero or negative proceeds are valid and yield all-zero distributions.
// A pro-rata step with zero total ownership is degenerate: it distributes
// nothing and is flagged in the trace rather than failing.
func Distribute(totalProceeds decimal.Decimal, steps []types.WaterfallStep, partners []types.Partner) (*Result, error) {
	logger := log.With().
		Str("component", "waterfall").
		Int("steps", len(steps)).
		Int("partners", len(partners)).
		Logger()

	total := money.Round(totalProceeds)
	remaining := total

	perPartner := make(map[string]decimal.Decimal, len(partners))
	for _, p := range partners {
		perPartner[p.PartnerID] = decimal.Zero
	}

	// Capital returned so far across RETURN_OF_CAPITAL steps only, so a
	// preferred-return tier never counts against unreturned capital.
	capitalReturned := make(map[string]decimal.Decimal, len(partners))

	trace := types.WaterfallTrace{TotalProceeds: total, Steps: []types.StepTrace{}}

	for i, step := range steps {
		if remaining.Sign() <= 0 {
			logger.Debug().Int("step_index", i).Msg("proceeds exhausted, skipping remaining steps")
			break
		}

		kind, err := NormalizeKind(step.Kind)
		if err != nil {
			return nil, err
		}

		st := types.StepTrace{
			Kind:       kind,
			PerPartner: make(map[string]decimal.Decimal, len(partners)),
		}
		before := remaining

		switch kind {
		case KindReturnOfCapital:
			remaining = applyReturnOfCapital(remaining, partners, perPartner, capitalReturned, &st)
		case KindPreferredReturn:
			remaining = applyPreferredReturn(remaining, step, partners, perPartner, &st)
		case KindCatchUp:
			remaining = applySequentialShare(remaining, step.Percentage, partners, perPartner, &st, isCatchUpEligible)
		case KindPromote:
			remaining = applySequentialShare(remaining, step.Percentage, partners, perPartner, &st, isPromoteEligible)
		case KindProRata:
			remaining = applyProRata(remaining, partners, perPartner, &st)
		}

		st.Distributed = before.Sub(remaining)
		st.Remaining = remaining
		trace.Steps = append(trace.Steps, st)
	}

	trace.Remaining = remaining

	logger.Debug().
		Str("total_proceeds", total.StringFixed(2)).
		Str("remaining", remaining.StringFixed(2)).
		Int("steps_processed", len(trace.Steps)).
		Msg("completed waterfall distribution")

	return &Result{
		PerPartner: perPartner,
		Remaining:  remaining,
		Trace:      trace,
	}, nil
}

// applyReturnOfCapital returns unreturned capital contributions in partner
// order until the pool runs dry.
func applyReturnOfCapital(remaining decimal.Decimal, partners []types.Partner,
	perPartner, capitalReturned map[string]decimal.Decimal, st *types.StepTrace) decimal.Decimal {

	for _, p := range partners {
		if remaining.Sign() <= 0 {
			break
		}
		unreturned := money.Round(p.CapitalContributed).Sub(capitalReturned[p.PartnerID])
		if unreturned.Sign() <= 0 {
			continue
		}
		amount := decimal.Min(unreturned, remaining)
		perPartner[p.PartnerID] = perPartner[p.PartnerID].Add(amount)
		capitalReturned[p.PartnerID] = capitalReturned[p.PartnerID].Add(amount)
		st.PerPartner[p.PartnerID] = st.PerPartner[p.PartnerID].Add(amount)
		remaining = remaining.Sub(amount)
	}
	return remaining
}

// applyPreferredReturn pays capital × rate to eligible partners, capped at
// the remaining pool. The step rate applies unless the partner carries an
// agreement-level preferred rate of their own.
func applyPreferredReturn(remaining decimal.Decimal, step types.WaterfallStep,
	partners []types.Partner, perPartner map[string]decimal.Decimal, st *types.StepTrace) decimal.Decimal {

	for _, p := range partners {
		if remaining.Sign() <= 0 {
			break
		}
		if !isPreferredEligible(p) {
			continue
		}
		rate := step.Rate
		if rate.IsZero() && p.PreferredReturnRate.IsPositive() {
			rate = p.PreferredReturnRate
		}
		amount := money.Round(p.CapitalContributed.Mul(rate))
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		if amount.Sign() <= 0 {
			continue
		}
		perPartner[p.PartnerID] = perPartner[p.PartnerID].Add(amount)
		st.PerPartner[p.PartnerID] = st.PerPartner[p.PartnerID].Add(amount)
		remaining = remaining.Sub(amount)
	}
	return remaining
}

// applySequentialShare implements catch-up and promote tiers: each eligible
// partner takes percentage × remaining, and the pool is decremented
// immediately, so a second eligible partner in the same step sees the
// already-reduced pool. Catch-up provisions are typically single-recipient,
// and this sequential semantics is the intended behavior.
func applySequentialShare(remaining, percentage decimal.Decimal, partners []types.Partner,
	perPartner map[string]decimal.Decimal, st *types.StepTrace, eligible func(types.Partner) bool) decimal.Decimal {

	for _, p := range partners {
		if remaining.Sign() <= 0 {
			break
		}
		if !eligible(p) {
			continue
		}
		amount := money.Round(remaining.Mul(percentage))
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		if amount.Sign() <= 0 {
			continue
		}
		perPartner[p.PartnerID] = perPartner[p.PartnerID].Add(amount)
		st.PerPartner[p.PartnerID] = st.PerPartner[p.PartnerID].Add(amount)
		remaining = remaining.Sub(amount)
	}
	return remaining
}

// applyProRata distributes the entire remaining pool proportional to
// ownership percentage. The step always consumes the pool: shares are
// floored to the cent and the residual cents are assigned to the partners
// with the largest fractional remainders (ties broken by partner order) so
// conservation is exact.
func applyProRata(remaining decimal.Decimal, partners []types.Partner,
	perPartner map[string]decimal.Decimal, st *types.StepTrace) decimal.Decimal {

	totalOwnership := decimal.Zero
	for _, p := range partners {
		totalOwnership = totalOwnership.Add(p.OwnershipPercentage)
	}

	if totalOwnership.Sign() <= 0 {
		log.Warn().
			Str("component", "waterfall").
			Str("remaining", remaining.StringFixed(2)).
			Msg("pro-rata step with zero total ownership, nothing distributed")
		st.Degenerate = true
		return remaining
	}

	type share struct {
		idx       int
		partnerID string
		floored   decimal.Decimal
		remainder decimal.Decimal
	}

	shares := make([]share, 0, len(partners))
	allocated := decimal.Zero
	for i, p := range partners {
		raw := remaining.Mul(p.OwnershipPercentage).Div(totalOwnership)
		floored := raw.RoundDown(money.CurrencyPlaces)
		shares = append(shares, share{
			idx:       i,
			partnerID: p.PartnerID,
			floored:   floored,
			remainder: raw.Sub(floored),
		})
		allocated = allocated.Add(floored)
	}

	// Residual cents left by flooring, largest fractional remainder first.
	residualCents := remaining.Sub(allocated).Div(money.Cent).IntPart()
	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].remainder.GreaterThan(shares[j].remainder)
	})
	for i := int64(0); i < residualCents && i < int64(len(shares)); i++ {
		shares[i].floored = shares[i].floored.Add(money.Cent)
	}

	// Restore partner order for the trace.
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].idx < shares[j].idx })
	for _, sh := range shares {
		if sh.floored.Sign() == 0 {
			st.PerPartner[sh.partnerID] = decimal.Zero
			continue
		}
		perPartner[sh.partnerID] = perPartner[sh.partnerID].Add(sh.floored)
		st.PerPartner[sh.partnerID] = st.PerPartner[sh.partnerID].Add(sh.floored)
	}

	// Pro-rata consumes everything regardless of accumulated rounding.
	return decimal.Zero
}

func isPreferredEligible(p types.Partner) bool {
	return p.ReceivesPreferredReturn || strings.EqualFold(p.PartnerType, TypeLimited)
}

func isCatchUpEligible(p types.Partner) bool {
	return strings.EqualFold(p.PartnerType, TypeGeneral) || strings.EqualFold(p.PartnerType, TypeManagingMember)
}

func isPromoteEligible(p types.Partner) bool {
	return p.ReceivesPromote
}
