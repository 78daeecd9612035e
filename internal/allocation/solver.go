package allocation

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/money"
	"github.com/ksred/capalloc-api/internal/types"
)

// Config carries the reconciliation settings for one allocation run. It is
// passed explicitly so the engine stays a pure function of its inputs.
type Config struct {
	// ApplyTrueUp rescales every allocation by net_income/total when the
	// totals disagree beyond the one-cent tolerance instead of failing
	// closed.
	ApplyTrueUp bool
}

// DefaultConfig returns the engine defaults with true-up disabled.
func DefaultConfig() Config {
	return Config{}
}

// Solve computes the income/loss allocation required to move each partner
// from current balance to target balance, then reconciles the total to
// actual net income. Positive amounts are income, negative are loss.
//
// Reconciliation is two-pass: raw per-partner amounts are computed and
// rounded first, and only if their total disagrees with net income beyond
// tolerance is the proportional true-up applied as a separate rescale and
// re-round over the already-computed slots. After a true-up the returned
// amounts sum to net income exactly, with residual cents assigned by
// largest fractional remainder.
func Solve(partners []types.Partner, targets, current map[string]decimal.Decimal,
	netIncome decimal.Decimal, cfg Config) (map[string]decimal.Decimal, bool, error) {

	net := money.Round(netIncome)

	required := make(map[string]decimal.Decimal, len(partners))
	total := decimal.Zero
	for _, p := range partners {
		target := targets[p.PartnerID]
		cur := current[p.PartnerID]
		r := money.Round(target.Sub(cur))
		required[p.PartnerID] = r
		total = total.Add(r)
	}

	if money.WithinTolerance(total, net) {
		return required, false, nil
	}

	discrepancy := total.Sub(net)
	if !cfg.ApplyTrueUp {
		return nil, false, &ReconciliationError{
			Total:       total,
			NetIncome:   net,
			Discrepancy: discrepancy,
			Reason:      "no true-up requested",
		}
	}
	if total.IsZero() {
		// Rescaling by net/total is undefined; report rather than skip.
		return nil, false, &ReconciliationError{
			Total:       total,
			NetIncome:   net,
			Discrepancy: discrepancy,
			Reason:      "allocation total is zero, proportional true-up not possible",
		}
	}

	log.Debug().
		Str("component", "allocation_solver").
		Str("total", total.StringFixed(2)).
		Str("net_income", net.StringFixed(2)).
		Str("discrepancy", discrepancy.StringFixed(2)).
		Msg("applying proportional true-up")

	factor := net.Div(total)

	type slot struct {
		idx       int
		partnerID string
		rounded   decimal.Decimal
		diff      decimal.Decimal // scaled − rounded, in (−0.005, 0.005]
	}

	slots := make([]slot, 0, len(partners))
	sum := decimal.Zero
	for i, p := range partners {
		scaled := required[p.PartnerID].Mul(factor)
		rounded := money.Round(scaled)
		slots = append(slots, slot{
			idx:       i,
			partnerID: p.PartnerID,
			rounded:   rounded,
			diff:      scaled.Sub(rounded),
		})
		sum = sum.Add(rounded)
	}

	// Re-rounding can leave the total a few cents off net income. Assign
	// the residual deterministically: positive residual to the slots that
	// were rounded down the most, negative to the ones rounded up the most,
	// ties broken by partner order.
	residualCents := net.Sub(sum).Div(money.Cent).IntPart()
	if residualCents > 0 {
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].diff.GreaterThan(slots[j].diff) })
	} else if residualCents < 0 {
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].diff.LessThan(slots[j].diff) })
	}
	step := money.Cent
	if residualCents < 0 {
		step = money.Cent.Neg()
		residualCents = -residualCents
	}
	for i := int64(0); i < residualCents; i++ {
		slots[i%int64(len(slots))].rounded = slots[i%int64(len(slots))].rounded.Add(step)
	}

	adjusted := make(map[string]decimal.Decimal, len(slots))
	for _, s := range slots {
		adjusted[s.partnerID] = s.rounded
	}
	return adjusted, true, nil
}
