package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/capalloc-api/internal/ledger"
	"github.com/ksred/capalloc-api/internal/types"
	"github.com/ksred/capalloc-api/pkg/response"
)

// ErrRunNotPostable marks an attempt to post a run that is not in
// COMPLETED status.
var ErrRunNotPostable = errors.New("run is not in a postable status")

// Processor posts completed allocation runs to capital accounts through the
// ledger. The engine itself never writes an account; this loop is the
// single serialization point for posting, so two runs against the same
// partnership cannot race each other.
type Processor struct {
	runs         *Database
	ledger       *ledger.Service
	processDelay time.Duration
}

func NewProcessor(runs *Database, ledgerService *ledger.Service) *Processor {
	return &Processor{
		runs:         runs,
		ledger:       ledgerService,
		processDelay: time.Minute,
	}
}

// Start begins the posting loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "allocation_processor").Logger()
	logger.Info().Msg("starting allocation posting processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down allocation posting processor")
			return
		case <-ticker.C:
			if err := p.processUnpostedRuns(); err != nil {
				logger.Error().Err(err).Msg("failed to process unposted runs")
			}
		}
	}
}

func (p *Processor) processUnpostedRuns() error {
	logger := log.With().Str("component", "allocation_processor").Logger()

	runs, err := p.runs.GetUnpostedRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	logger.Info().Int("unposted_count", len(runs)).Msg("posting completed allocation runs")

	for i := range runs {
		run := &runs[i]
		if err := p.postRun(run); err != nil {
			// The transaction rolled back; the run stays COMPLETED and is
			// retried on the next tick.
			logger.Error().
				Err(err).
				Str("run_id", run.RunID).
				Msg("failed to post allocation run")
			continue
		}

		logger.Info().
			Str("run_id", run.RunID).
			Str("partnership_id", run.PartnershipID).
			Msg("allocation run posted to capital accounts")
	}

	return nil
}

// PostRunByID posts a single completed run immediately instead of waiting
// for the next tick.
func (p *Processor) PostRunByID(runID string) (*Run, error) {
	run, err := p.runs.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotPostable, run.RunID, run.Status)
	}
	if err := p.postRun(run); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "allocation_processor").
		Str("run_id", run.RunID).
		Str("partnership_id", run.PartnershipID).
		Msg("allocation run posted to capital accounts")
	return run, nil
}

// PostRunHandler handles POST requests on the internal network to post a
// completed run's allocations. URL parameter: run_id
func (p *Processor) PostRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := p.PostRunByID(c.Param("run_id"))
		if errors.Is(err, ErrRunNotPostable) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, run, err)
	}
}

// postRun applies the run's required allocations to each partner's capital
// account in the order recorded in the input snapshot, then transitions the
// run to POSTED. The allocations and the status transition commit in one
// transaction, and partners already on the audit trail are skipped, so a
// failed or repeated posting attempt cannot apply an amount twice.
func (p *Processor) postRun(run *Run) error {
	var result types.AllocationResult
	if err := json.Unmarshal([]byte(run.ResultJSON), &result); err != nil {
		return err
	}
	var req types.AllocationRequest
	if err := json.Unmarshal([]byte(run.RequestJSON), &req); err != nil {
		return err
	}

	partnerOrder := make([]string, 0, len(req.Partners))
	for _, partner := range req.Partners {
		partnerOrder = append(partnerOrder, partner.PartnerID)
	}

	return p.runs.db.Transaction(func(tx *gorm.DB) error {
		if err := p.ledger.PostRunAllocations(tx, run.PartnershipID, run.RunID, partnerOrder, result.RequiredAllocations); err != nil {
			return err
		}
		return NewDatabase(tx).MarkPosted(run)
	})
}
