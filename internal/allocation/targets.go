package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/money"
)

// DeriveTargets maps hypothetical liquidation proceeds to target capital
// account balances. Under the target capital account method the mapping is
// the identity, rounded to penny precision. It lives behind its own
// function because the mapping is a policy choice, not an accounting
// identity: a variant method (book-up adjustments, for example) replaces
// this function and nothing else.
func DeriveTargets(liquidationProceeds map[string]decimal.Decimal) map[string]decimal.Decimal {
	targets := make(map[string]decimal.Decimal, len(liquidationProceeds))
	for partnerID, proceeds := range liquidationProceeds {
		targets[partnerID] = money.Round(proceeds)
	}
	return targets
}
