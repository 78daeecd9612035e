// Package ledger maintains Section 704(b) capital accounts: it is the only
// component that mutates account balances, rolling each account forward
// from contributions, distributions, allocations and other adjustments.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/money"
	"github.com/ksred/capalloc-api/internal/types"
	"github.com/ksred/capalloc-api/pkg/response"
)

// Transaction types.
const (
	TxnContribution = "CONTRIBUTION"
	TxnDistribution = "DISTRIBUTION"
	TxnAllocation   = "ALLOCATION"
	TxnRevaluation  = "REVALUATION"
)

// Allocation types for ALLOCATION transactions.
const (
	AllocationIncome = "INCOME"
	AllocationLoss   = "LOSS"
)

// ErrInvalidTransaction marks a transaction request that failed validation.
var ErrInvalidTransaction = errors.New("invalid transaction")

// RollForward computes the period-end balance per the Section 704(b)
// maintenance identity:
//
//	ending = beginning + contributions − distributions
//	         + income allocations − loss allocations + other adjustments
//
// Terms are summed at full precision and rounded once at the end so
// intermediate rounding error cannot compound.
func RollForward(beginning, contributions, distributions, incomeAllocations, lossAllocations, otherAdjustments decimal.Decimal) decimal.Decimal {
	return money.Round(beginning.
		Add(contributions).
		Sub(distributions).
		Add(incomeAllocations).
		Sub(lossAllocations).
		Add(otherAdjustments))
}

// PartnerSource supplies partner snapshots for a partnership. Implemented
// by the partnership service; the ledger needs it to spread revaluations
// across ownership interests.
type PartnerSource interface {
	ListPartnerSnapshots(partnershipID string) ([]types.Partner, error)
}

// Service processes capital account transactions.
type Service struct {
	db       *Database
	partners PartnerSource
}

func NewService(gormDB *gorm.DB, partners PartnerSource) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		partners: partners,
	}
}

// GetDB exposes the ledger database for the allocation posting processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// GetCapitalAccounts returns the current capital accounts for a partnership.
func (s *Service) GetCapitalAccounts(partnershipID string) ([]CapitalAccount, error) {
	return s.db.GetAccountsByPartnership(partnershipID)
}

// GetAuditTrail returns the transaction history for a partnership.
func (s *Service) GetAuditTrail(partnershipID string) ([]CapitalTransaction, error) {
	return s.db.GetTransactionsByPartnership(partnershipID)
}

// ProcessTransaction validates and applies one capital account transaction,
// returning the updated balances. Validation failures are rejected before
// anything is written.
func (s *Service) ProcessTransaction(partnershipID string, req *TransactionRequest) (*TransactionResponse, error) {
	logger := log.With().
		Str("partnership_id", partnershipID).
		Str("transaction_type", req.TransactionType).
		Str("service", "ledger").
		Logger()

	if err := s.validateTransaction(req); err != nil {
		logger.Warn().Err(err).Msg("transaction validation failed")
		return nil, err
	}

	amount := money.Round(req.Amount)
	effectiveDate := time.Now()
	if req.EffectiveDate != nil {
		effectiveDate = *req.EffectiveDate
	}

	txn := &CapitalTransaction{
		TransactionID:   "TXN_" + uuid.New().String(),
		PartnershipID:   partnershipID,
		PartnerID:       req.PartnerID,
		TransactionType: req.TransactionType,
		AllocationType:  req.AllocationType,
		Amount:          amount,
		EffectiveDate:   effectiveDate,
	}

	var accounts []*CapitalAccount
	var err error

	switch req.TransactionType {
	case TxnContribution, TxnDistribution, TxnAllocation:
		accounts, err = s.applySinglePartner(partnershipID, req, amount)
	case TxnRevaluation:
		accounts, err = s.applyRevaluation(partnershipID, amount)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply transaction")
		return nil, err
	}

	if err := s.db.ApplyTransaction(accounts, txn); err != nil {
		logger.Error().Err(err).Msg("failed to persist transaction")
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(accounts))
	for _, account := range accounts {
		balances[account.PartnerID] = account.EndingBalance
	}

	logger.Info().
		Str("transaction_id", txn.TransactionID).
		Str("amount", amount.StringFixed(2)).
		Int("accounts_updated", len(accounts)).
		Msg("transaction processed")

	return &TransactionResponse{
		TransactionID:   txn.TransactionID,
		PartnershipID:   partnershipID,
		TransactionType: req.TransactionType,
		UpdatedBalances: balances,
		Timestamp:       time.Now(),
	}, nil
}

// PostRunAllocations applies a run's required allocations to capital
// accounts on tx, in the partner order given. Positive amounts are income,
// negative are loss. A partner whose allocation for this run is already on
// the audit trail is skipped, so a posting retry after a partial failure
// never applies an amount twice. Callers own the transaction boundary.
func (s *Service) PostRunAllocations(tx *gorm.DB, partnershipID, runID string, partnerOrder []string, amounts map[string]decimal.Decimal) error {
	db := NewDatabase(tx)

	for _, partnerID := range partnerOrder {
		amount, ok := amounts[partnerID]
		if !ok || amount.IsZero() {
			continue
		}

		posted, err := db.HasRunTransaction(runID, partnerID)
		if err != nil {
			return err
		}
		if posted {
			log.Warn().
				Str("service", "ledger").
				Str("run_id", runID).
				Str("partner_id", partnerID).
				Msg("allocation already posted for partner, skipping")
			continue
		}

		account, err := db.GetOrCreateAccount(partnershipID, partnerID)
		if err != nil {
			return err
		}

		allocationType := AllocationIncome
		if amount.IsNegative() {
			allocationType = AllocationLoss
			account.LossAllocations = account.LossAllocations.Add(amount.Abs())
		} else {
			account.IncomeAllocations = account.IncomeAllocations.Add(amount)
		}
		account.EndingBalance = rollForwardAccount(account)

		txn := &CapitalTransaction{
			TransactionID:   "TXN_" + uuid.New().String(),
			PartnershipID:   partnershipID,
			PartnerID:       partnerID,
			TransactionType: TxnAllocation,
			AllocationType:  allocationType,
			Amount:          amount.Abs(),
			EffectiveDate:   time.Now(),
			RunID:           runID,
		}

		if err := db.SaveAccountAndTransaction(account, txn); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) applySinglePartner(partnershipID string, req *TransactionRequest, amount decimal.Decimal) ([]*CapitalAccount, error) {
	account, err := s.db.GetOrCreateAccount(partnershipID, req.PartnerID)
	if err != nil {
		return nil, err
	}

	switch req.TransactionType {
	case TxnContribution:
		account.Contributions = account.Contributions.Add(amount)
	case TxnDistribution:
		account.Distributions = account.Distributions.Add(amount)
	case TxnAllocation:
		if req.AllocationType == AllocationLoss {
			account.LossAllocations = account.LossAllocations.Add(amount)
		} else {
			account.IncomeAllocations = account.IncomeAllocations.Add(amount)
		}
	}

	account.EndingBalance = rollForwardAccount(account)
	return []*CapitalAccount{account}, nil
}

// applyRevaluation spreads a Section 704(b) book revaluation across all
// partners by ownership percentage as other adjustments.
func (s *Service) applyRevaluation(partnershipID string, amount decimal.Decimal) ([]*CapitalAccount, error) {
	partners, err := s.partners.ListPartnerSnapshots(partnershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch partners for revaluation: %w", err)
	}
	if len(partners) == 0 {
		return nil, fmt.Errorf("%w: partnership has no partners to revalue", ErrInvalidTransaction)
	}

	accounts := make([]*CapitalAccount, 0, len(partners))
	allocated := decimal.Zero
	for _, p := range partners {
		account, err := s.db.GetOrCreateAccount(partnershipID, p.PartnerID)
		if err != nil {
			return nil, err
		}
		share := money.Round(amount.Mul(p.OwnershipPercentage))
		account.OtherAdjustments = account.OtherAdjustments.Add(share)
		account.EndingBalance = rollForwardAccount(account)
		accounts = append(accounts, account)
		allocated = allocated.Add(share)
	}

	if !allocated.Equal(amount) {
		log.Warn().
			Str("service", "ledger").
			Str("partnership_id", partnershipID).
			Str("revaluation_amount", amount.StringFixed(2)).
			Str("allocated", allocated.StringFixed(2)).
			Msg("revaluation rounding left an unallocated residual")
	}

	return accounts, nil
}

func (s *Service) validateTransaction(req *TransactionRequest) error {
	switch req.TransactionType {
	case TxnContribution, TxnDistribution:
		if req.PartnerID == "" {
			return fmt.Errorf("%w: partner_id is required", ErrInvalidTransaction)
		}
		if req.Amount.IsNegative() {
			return fmt.Errorf("%w: amount cannot be negative for %s", ErrInvalidTransaction, req.TransactionType)
		}
	case TxnAllocation:
		if req.PartnerID == "" {
			return fmt.Errorf("%w: partner_id is required", ErrInvalidTransaction)
		}
		if req.Amount.IsNegative() {
			return fmt.Errorf("%w: allocation amount cannot be negative, use allocation_type LOSS", ErrInvalidTransaction)
		}
		if req.AllocationType != "" && req.AllocationType != AllocationIncome && req.AllocationType != AllocationLoss {
			return fmt.Errorf("%w: allocation_type must be INCOME or LOSS", ErrInvalidTransaction)
		}
	case TxnRevaluation:
		// Any sign is valid; book-downs are negative.
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransaction, req.TransactionType)
	}
	return nil
}

func rollForwardAccount(a *CapitalAccount) decimal.Decimal {
	return RollForward(a.BeginningBalance, a.Contributions, a.Distributions,
		a.IncomeAllocations, a.LossAllocations, a.OtherAdjustments)
}

// GinHandlers contains HTTP handlers for capital account endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RecordTransactionHandler handles POST requests to record capital account
// transactions. URL parameter: partnership_id
func (h *GinHandlers) RecordTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		var req TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.service.ProcessTransaction(partnershipID, &req)
		if errors.Is(err, ErrInvalidTransaction) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}

// GetCapitalAccountsHandler handles GET requests for a partnership's
// capital accounts
func (h *GinHandlers) GetCapitalAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		accounts, err := h.service.GetCapitalAccounts(partnershipID)
		response.Handle(c, accounts, err)
	}
}

// GetAuditTrailHandler handles GET requests for a partnership's transaction
// history
func (h *GinHandlers) GetAuditTrailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		transactions, err := h.service.GetAuditTrail(partnershipID)
		response.Handle(c, transactions, err)
	}
}
