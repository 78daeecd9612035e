package allocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/types"
	"github.com/ksred/capalloc-api/pkg/response"
)

// Service orchestrates allocation runs: it feeds request snapshots through
// the pure engine and persists each run as an immutable record.
type Service struct {
	db  *Database
	cfg Config
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		cfg: DefaultConfig(),
	}
}

// GetDB exposes the run database for the posting processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// CalculateTargetAllocations runs the engine over the supplied snapshot and
// persists the run. Engine failures other than malformed input are recorded
// as FAILED runs; no capital account is mutated either way.
func (s *Service) CalculateTargetAllocations(partnershipID string, req types.AllocationRequest) (*RunResponse, error) {
	logger := log.With().
		Str("partnership_id", partnershipID).
		Str("service", "allocation").
		Logger()

	req.PartnershipID = partnershipID

	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot allocation request: %w", err)
	}

	run := &Run{
		RunID:         "RUN_" + uuid.New().String(),
		PartnershipID: partnershipID,
		NetIncome:     req.NetIncome,
		TotalProceeds: req.TotalProceeds,
		RequestJSON:   string(requestJSON),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	result, calcErr := Calculate(req, s.cfg)
	if calcErr != nil {
		var malformed *MalformedInputError
		if errors.As(calcErr, &malformed) {
			// Rejected before any computation began; nothing to record.
			logger.Warn().Err(calcErr).Msg("allocation request rejected")
			return nil, calcErr
		}

		run.Status = StatusFailed
		run.FailureReason = calcErr.Error()
		if err := s.db.CreateRun(run); err != nil {
			logger.Error().Err(err).Msg("failed to save failed run record")
			return nil, err
		}
		logger.Warn().
			Err(calcErr).
			Str("run_id", run.RunID).
			Msg("allocation run failed")
		return nil, calcErr
	}

	result.CalculatedAt = run.CreatedAt

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot allocation result: %w", err)
	}

	run.Status = StatusCompleted
	run.TrueUpApplied = result.TrueUpApplied
	run.ResultJSON = string(resultJSON)

	if err := s.db.CreateRun(run); err != nil {
		logger.Error().Err(err).Msg("failed to save allocation run")
		return nil, fmt.Errorf("failed to save allocation run: %w", err)
	}

	logger.Info().
		Str("run_id", run.RunID).
		Bool("true_up_applied", result.TrueUpApplied).
		Bool("substantial_economic_effect", result.Compliance.SubstantialEconomicEffect).
		Msg("allocation run completed")

	return &RunResponse{
		RunID:         run.RunID,
		PartnershipID: partnershipID,
		Status:        run.Status,
		Result:        result,
		Timestamp:     run.CreatedAt,
	}, nil
}

// GetRun retrieves a persisted allocation run.
func (s *Service) GetRun(runID string) (*RunResponse, error) {
	run, err := s.db.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return runToResponse(run)
}

// GetComplianceReport builds a compliance report from the latest successful
// run for a partnership.
func (s *Service) GetComplianceReport(partnershipID string) (*ComplianceReport, error) {
	run, err := s.db.GetLatestCompletedRun(partnershipID)
	if err != nil {
		return nil, err
	}

	var result types.AllocationResult
	if err := json.Unmarshal([]byte(run.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode run result: %w", err)
	}

	var req types.AllocationRequest
	if err := json.Unmarshal([]byte(run.RequestJSON), &req); err != nil {
		return nil, fmt.Errorf("failed to decode run request: %w", err)
	}

	return &ComplianceReport{
		PartnershipID: partnershipID,
		RunID:         run.RunID,
		Compliance:    result.Compliance,
		HasDRO:        req.AgreementTerms.HasDRO,
		HasQIO:        req.AgreementTerms.HasQIO,
		GeneratedAt:   time.Now(),
	}, nil
}

func runToResponse(run *Run) (*RunResponse, error) {
	resp := &RunResponse{
		RunID:         run.RunID,
		PartnershipID: run.PartnershipID,
		Status:        run.Status,
		FailureReason: run.FailureReason,
		Timestamp:     run.CreatedAt,
	}
	if run.ResultJSON != "" {
		var result types.AllocationResult
		if err := json.Unmarshal([]byte(run.ResultJSON), &result); err != nil {
			return nil, fmt.Errorf("failed to decode run result: %w", err)
		}
		resp.Result = &result
	}
	return resp, nil
}

// GinHandlers contains HTTP handlers for allocation endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CalculateHandler handles POST requests to run a target allocation
// calculation. URL parameter: partnership_id
func (h *GinHandlers) CalculateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		var req types.AllocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.service.CalculateTargetAllocations(partnershipID, req)

		var malformed *MalformedInputError
		var reconciliation *ReconciliationError
		switch {
		case errors.As(err, &malformed):
			response.BadRequest(c, err.Error())
		case errors.As(err, &reconciliation):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.Handle(c, result, err)
		}
	}
}

// GetRunHandler handles GET requests for a persisted allocation run
func (h *GinHandlers) GetRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("run_id")

		run, err := h.service.GetRun(runID)
		response.Handle(c, run, err)
	}
}

// ComplianceReportHandler handles GET requests for a partnership's latest
// compliance report
func (h *GinHandlers) ComplianceReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnershipID := c.Param("partnership_id")

		report, err := h.service.GetComplianceReport(partnershipID)
		response.Handle(c, report, err)
	}
}
