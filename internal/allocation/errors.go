package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MalformedInputError rejects an allocation request before any computation
// begins. Nothing is partially applied.
type MalformedInputError struct {
	Field  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input: %s: %s", e.Field, e.Reason)
}

// ReconciliationError reports that the sum of required allocations does not
// equal net income within tolerance and no true-up could be applied. The
// computed discrepancy is carried so the caller can surface it.
type ReconciliationError struct {
	Total       decimal.Decimal
	NetIncome   decimal.Decimal
	Discrepancy decimal.Decimal
	Reason      string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation mismatch: allocations total %s vs net income %s (discrepancy %s): %s",
		e.Total.StringFixed(2), e.NetIncome.StringFixed(2), e.Discrepancy.StringFixed(2), e.Reason)
}
