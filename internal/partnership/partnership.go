// Package partnership owns partnership and partner records and validates
// the agreement data the allocation engine consumes.
package partnership

import (
	"errors"
	"fmt"
	"strings"
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

// ErrInvalidPartnership marks a create request that failed validation.
var ErrInvalidPartnership = errors.New("invalid partnership")

var one = decimal.NewFromInt(1)

// Service handles partnership and partner management.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreatePartnership validates and persists a partnership with its partners.
// Ownership percentages that do not sum to 1 are accepted, but the
// discrepancy is recorded on the partnership rather than silently
// normalized.
func (s *Service) CreatePartnership(req *CreateRequest) (*Response, error) {
	logger := log.With().
		Str("service", "partnership").
		Str("name", req.Name).
		Logger()

	if err := validateCreateRequest(req); err != nil {
		logger.Warn().Err(err).Msg("partnership validation failed")
		return nil, err
	}

	ownershipSum := decimal.Zero
	for _, p := range req.Partners {
		ownershipSum = ownershipSum.Add(p.OwnershipPercentage)
	}
	discrepancy := money.RoundRate(ownershipSum.Sub(one))
	if !discrepancy.IsZero() {
		logger.Warn().
			Str("ownership_sum", ownershipSum.String()).
			Str("discrepancy", discrepancy.String()).
			Msg("partner ownership percentages do not sum to 1")
	}

	entityType := strings.ToUpper(req.EntityType)
	if entityType == "" {
		entityType = "PARTNERSHIP"
	}
	taxYearEnd := req.TaxYearEnd
	if taxYearEnd == "" {
		taxYearEnd = "12-31"
	}

	partnership := &Partnership{
		PartnershipID:        "PTR_" + uuid.New().String(),
		Name:                 req.Name,
		EIN:                  req.EIN,
		EntityType:           entityType,
		TaxYearEnd:           taxYearEnd,
		HasDRO:               req.HasDRO,
		HasQIO:               req.HasQIO,
		Section754Election:   req.Section754Election,
		OwnershipDiscrepancy: discrepancy,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}

	partners := make([]*Partner, 0, len(req.Partners))
	for _, p := range req.Partners {
		partnerID := p.PartnerID
		if partnerID == "" {
			partnerID = "PRT_" + uuid.New().String()
		}
		partners = append(partners, &Partner{
			PartnerID:               partnerID,
			PartnershipID:           partnership.PartnershipID,
			Name:                    p.Name,
			PartnerType:             strings.ToUpper(p.PartnerType),
			OwnershipPercentage:     money.RoundRate(p.OwnershipPercentage),
			ProfitSharingPercentage: money.RoundRate(p.ProfitSharingPercentage),
			LossSharingPercentage:   money.RoundRate(p.LossSharingPercentage),
			CapitalContributed:      money.Round(p.CapitalContributed),
			ReceivesPromote:         p.ReceivesPromote,
			ReceivesPreferredReturn: p.ReceivesPreferredReturn,
			PreferredReturnRate:     money.RoundRate(p.PreferredReturnRate),
			Status:                  "ACTIVE",
			CreatedAt:               time.Now(),
			UpdatedAt:               time.Now(),
		})
	}

	if err := s.db.CreatePartnershipWithPartners(partnership, partners); err != nil {
		logger.Error().Err(err).Msg("failed to persist partnership")
		return nil, err
	}

	logger.Info().
		Str("partnership_id", partnership.PartnershipID).
		Int("partners", len(partners)).
		Msg("partnership created")

	result := &Response{Partnership: *partnership}
	for _, p := range partners {
		result.Partners = append(result.Partners, *p)
	}
	return result, nil
}

// GetPartnership retrieves a partnership with its partners.
func (s *Service) GetPartnership(partnershipID string) (*Response, error) {
	partnership, err := s.db.GetPartnership(partnershipID)
	if err != nil {
		return nil, err
	}
	partners, err := s.db.GetPartnersByPartnership(partnershipID)
	if err != nil {
		return nil, err
	}
	return &Response{Partnership: *partnership, Partners: partners}, nil
}

// ListPartnerSnapshots returns the engine-shaped partner snapshots for a
// partnership, in stable order. Implements the ledger's PartnerSource.
func (s *Service) ListPartnerSnapshots(partnershipID string) ([]types.Partner, error) {
	partners, err := s.db.GetPartnersByPartnership(partnershipID)
	if err != nil {
		return nil, err
	}
	snapshots := make([]types.Partner, 0, len(partners))
	for i := range partners {
		snapshots = append(snapshots, partners[i].Snapshot())
	}
	return snapshots, nil
}

func validateCreateRequest(req *CreateRequest) error {
	if len(req.Partners) == 0 {
		return fmt.Errorf("%w: at least one partner is required", ErrInvalidPartnership)
	}

	seen := make(map[string]bool, len(req.Partners))
	for i, p := range req.Partners {
		if p.Name == "" && p.PartnerID == "" {
			return fmt.Errorf("%w: partners[%d] needs a name or partner_id", ErrInvalidPartnership, i)
		}
		if p.PartnerID != "" {
			if seen[p.PartnerID] {
				return fmt.Errorf("%w: duplicate partner_id %s", ErrInvalidPartnership, p.PartnerID)
			}
			seen[p.PartnerID] = true
		}
		if !money.IsFraction(p.OwnershipPercentage) {
			return fmt.Errorf("%w: partners[%d].ownership_percentage must be a fraction in [0,1]", ErrInvalidPartnership, i)
		}
		if !money.IsFraction(p.ProfitSharingPercentage) {
			return fmt.Errorf("%w: partners[%d].profit_sharing_percentage must be a fraction in [0,1]", ErrInvalidPartnership, i)
		}
		if !money.IsFraction(p.LossSharingPercentage) {
			return fmt.Errorf("%w: partners[%d].loss_sharing_percentage must be a fraction in [0,1]", ErrInvalidPartnership, i)
		}
		if !money.IsFraction(p.PreferredReturnRate) {
			return fmt.Errorf("%w: partners[%d].preferred_return_rate must be a fraction in [0,1]", ErrInvalidPartnership, i)
		}
		if p.CapitalContributed.IsNegative() {
			return fmt.Errorf("%w: partners[%d].capital_contributed must not be negative", ErrInvalidPartnership, i)
		}
	}

	return nil
}

// GinHandlers contains HTTP handlers for partnership endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreatePartnershipHandler handles POST requests to create partnerships
func (h *GinHandlers) CreatePartnershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.service.CreatePartnership(&req)
		if errors.Is(err, ErrInvalidPartnership) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}

// GetPartnershipHandler handles GET requests for a partnership
func (h *GinHandlers) GetPartnershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		result, err := h.service.GetPartnership(partnershipID)
		response.Handle(c, result, err)
	}
}
