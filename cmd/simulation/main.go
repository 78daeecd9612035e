package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/capalloc-api/internal/allocation"
	"github.com/ksred/capalloc-api/internal/auth"
	"github.com/ksred/capalloc-api/internal/basis"
	"github.com/ksred/capalloc-api/internal/database"
	"github.com/ksred/capalloc-api/internal/ledger"
	"github.com/ksred/capalloc-api/internal/partnership"
	"github.com/ksred/capalloc-api/internal/types"
)

const (
	minPartnerships = 5
	maxPartnerships = 25
	numWorkers      = 5
	serverAddress   = "http://localhost:8080"
)

var partnershipNames = []string{
	"Riverside Holdings", "Summit Capital Partners", "Lakeview Properties",
	"Meridian Growth Fund", "Copper Canyon Ventures",
}

var partnerTypes = []string{"GENERAL", "LIMITED", "MANAGING_MEMBER"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the allocation API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":        {name: "Authentication"},
			"create":      {name: "Create Partnership"},
			"transaction": {name: "Record Transaction"},
			"calculate":   {name: "Calculate Allocations"},
			"accounts":    {name: "Capital Accounts"},
			"compliance":  {name: "Compliance Report"},
		},
	}

	// Get auth token
	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// doJSON issues an authenticated JSON request and decodes the standard
// response envelope into out.
func (sc *simulationClient) doJSON(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	envelope := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// createPartnership submits a new partnership and returns its ID along
// with the generated partner IDs
func (sc *simulationClient) createPartnership(req *partnership.CreateRequest) (*partnership.Response, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	var result partnership.Response
	if err := sc.doJSON("POST", "/api/v1/partnerships", req, &result); err != nil {
		sc.stats["create"].failures++
		return nil, err
	}
	if result.Partnership.PartnershipID == "" {
		sc.stats["create"].failures++
		return nil, fmt.Errorf("no partnership ID in response")
	}
	return &result, nil
}

// recordTransaction records a capital account transaction
func (sc *simulationClient) recordTransaction(partnershipID string, req *ledger.TransactionRequest) (*ledger.TransactionResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["transaction"].addDuration(time.Since(start))
	}()

	var result ledger.TransactionResponse
	path := fmt.Sprintf("/api/v1/partnerships/%s/transactions", partnershipID)
	if err := sc.doJSON("POST", path, req, &result); err != nil {
		sc.stats["transaction"].failures++
		return nil, err
	}
	return &result, nil
}

// calculateAllocations runs a target allocation calculation
func (sc *simulationClient) calculateAllocations(partnershipID string, req *types.AllocationRequest) (*allocation.RunResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["calculate"].addDuration(time.Since(start))
	}()

	var result allocation.RunResponse
	path := fmt.Sprintf("/api/v1/partnerships/%s/allocations/calculate", partnershipID)
	if err := sc.doJSON("POST", path, req, &result); err != nil {
		sc.stats["calculate"].failures++
		return nil, err
	}
	return &result, nil
}

// getCapitalAccounts fetches the current capital accounts
func (sc *simulationClient) getCapitalAccounts(partnershipID string) ([]ledger.CapitalAccount, error) {
	start := time.Now()
	defer func() {
		sc.stats["accounts"].addDuration(time.Since(start))
	}()

	var result []ledger.CapitalAccount
	path := fmt.Sprintf("/api/v1/partnerships/%s/capital-accounts", partnershipID)
	if err := sc.doJSON("GET", path, nil, &result); err != nil {
		sc.stats["accounts"].failures++
		return nil, err
	}
	return result, nil
}

// getComplianceReport fetches the latest compliance report
func (sc *simulationClient) getComplianceReport(partnershipID string) (*allocation.ComplianceReport, error) {
	start := time.Now()
	defer func() {
		sc.stats["compliance"].addDuration(time.Since(start))
	}()

	var result allocation.ComplianceReport
	path := fmt.Sprintf("/api/v1/partnerships/%s/compliance-report", partnershipID)
	if err := sc.doJSON("GET", path, nil, &result); err != nil {
		sc.stats["compliance"].failures++
		return nil, err
	}
	return &result, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-22s %8s %8s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-22s %8d %8d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// randomPartnership builds a create request with a random partner mix and
// a conventional four-tier waterfall agreement
func randomPartnership(workerID int) *partnership.CreateRequest {
	numPartners := rand.Intn(3) + 2 // 2-4 partners

	// Split ownership evenly; the engine surfaces any residual discrepancy
	share := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(numPartners))).Round(4)

	partners := make([]types.Partner, 0, numPartners)
	for i := 0; i < numPartners; i++ {
		partnerType := partnerTypes[rand.Intn(len(partnerTypes))]
		if i == 0 {
			partnerType = "GENERAL" // every partnership gets a GP
		}
		partners = append(partners, types.Partner{
			PartnerID:               fmt.Sprintf("SIM_%d_%d_%d", workerID, time.Now().UnixNano(), i),
			Name:                    fmt.Sprintf("Partner %c", 'A'+i),
			PartnerType:             partnerType,
			OwnershipPercentage:     share,
			ProfitSharingPercentage: share,
			LossSharingPercentage:   share,
			CapitalContributed:      decimal.NewFromInt(int64(rand.Intn(900)+100) * 1000),
			ReceivesPromote:         partnerType == "GENERAL",
			ReceivesPreferredReturn: partnerType == "LIMITED",
			PreferredReturnRate:     decimal.NewFromFloat(0.08),
		})
	}

	return &partnership.CreateRequest{
		Name:       fmt.Sprintf("%s %d", partnershipNames[rand.Intn(len(partnershipNames))], rand.Intn(1000)),
		EntityType: "PARTNERSHIP",
		HasDRO:     rand.Intn(2) == 0,
		HasQIO:     rand.Intn(2) == 0,
		Partners:   partners,
	}
}

// main runs the allocation simulation
// It starts a local API server and simulates multiple concurrent firms
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Generate random number of partnerships to process
	targetPartnerships := rand.Intn(maxPartnerships-minPartnerships) + minPartnerships
	log.Info().Int("target_partnerships", targetPartnerships).Msg("Starting simulation")

	// Channel to collect created partnerships
	partnershipsChan := make(chan *partnership.Response, targetPartnerships)
	var wg sync.WaitGroup

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			createPartnershipsHTTP(workerID, targetPartnerships/numWorkers, simClient, partnershipsChan)
		}(i)
	}

	// Wait for all partnerships to be created
	wg.Wait()
	close(partnershipsChan)

	var created []*partnership.Response
	for p := range partnershipsChan {
		created = append(created, p)
	}

	log.Info().Int("partnerships_created", len(created)).Msg("All partnerships created")

	// Collect statistics during processing
	stats := struct {
		TotalPartnerships int
		Transactions      int
		CompletedRuns     int
		TrueUps           int
		CompliantRuns     int
		FailedRuns        int
		TotalProceeds     decimal.Decimal
		StartTime         time.Time
		PartnerTypes      map[string]int
	}{
		StartTime:     time.Now(),
		TotalProceeds: decimal.Zero,
		PartnerTypes:  make(map[string]int),
	}
	stats.TotalPartnerships = len(created)

	for _, p := range created {
		partnershipID := p.Partnership.PartnershipID

		// Record each partner's capital contribution, then run a year-end
		// allocation over a randomized proceeds pool
		for _, partner := range p.Partners {
			stats.PartnerTypes[partner.PartnerType]++
			_, err := simClient.recordTransaction(partnershipID, &ledger.TransactionRequest{
				TransactionType: ledger.TxnContribution,
				PartnerID:       partner.PartnerID,
				Amount:          partner.CapitalContributed,
			})
			if err != nil {
				log.Error().Err(err).Str("partnership_id", partnershipID).Msg("Failed to record contribution")
				continue
			}
			stats.Transactions++
		}

		accounts, err := simClient.getCapitalAccounts(partnershipID)
		if err != nil {
			log.Error().Err(err).Str("partnership_id", partnershipID).Msg("Failed to fetch capital accounts")
			continue
		}

		currentBalances := make(map[string]decimal.Decimal, len(accounts))
		totalCapital := decimal.Zero
		for _, account := range accounts {
			currentBalances[account.PartnerID] = account.EndingBalance
			totalCapital = totalCapital.Add(account.EndingBalance)
		}

		// Proceeds between 90% and 150% of contributed capital
		growth := decimal.NewFromFloat(0.9 + rand.Float64()*0.6)
		proceeds := totalCapital.Mul(growth).Round(2)
		netIncome := proceeds.Sub(totalCapital)

		snapshots := make([]types.Partner, 0, len(p.Partners))
		for _, partner := range p.Partners {
			snapshots = append(snapshots, partner.Snapshot())
		}

		run, err := simClient.calculateAllocations(partnershipID, &types.AllocationRequest{
			Partners: snapshots,
			AgreementTerms: types.AgreementTerms{
				DistributionWaterfall: []types.WaterfallStep{
					{Kind: "RETURN_OF_CAPITAL"},
					{Kind: "PREFERRED_RETURN", Rate: decimal.NewFromFloat(0.08)},
					{Kind: "PROMOTE", Percentage: decimal.NewFromFloat(0.2)},
					{Kind: "PRO_RATA"},
				},
				HasDRO: p.Partnership.HasDRO,
				HasQIO: p.Partnership.HasQIO,
			},
			NetIncome:       netIncome,
			TotalProceeds:   proceeds,
			CurrentBalances: currentBalances,
			ApplyTrueUp:     true,
		})
		if err != nil {
			log.Error().Err(err).Str("partnership_id", partnershipID).Msg("Failed to calculate allocations")
			stats.FailedRuns++
			continue
		}
		stats.CompletedRuns++
		stats.TotalProceeds = stats.TotalProceeds.Add(proceeds)
		if run.Result != nil && run.Result.TrueUpApplied {
			stats.TrueUps++
		}

		report, err := simClient.getComplianceReport(partnershipID)
		if err != nil {
			log.Error().Err(err).Str("partnership_id", partnershipID).Msg("Failed to fetch compliance report")
			continue
		}
		if report.Compliance.SubstantialEconomicEffect {
			stats.CompliantRuns++
		}

		log.Info().
			Str("partnership_id", partnershipID).
			Str("run_id", run.RunID).
			Str("proceeds", proceeds.StringFixed(2)).
			Str("net_income", netIncome.StringFixed(2)).
			Bool("substantial_economic_effect", report.Compliance.SubstantialEconomicEffect).
			Msg("Allocation run completed")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("ALLOCATION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Partnership Statistics
----------------------
Total Partnerships: %d
Transactions:       %d
Completed Runs:     %d
Failed Runs:        %d
True-Ups Applied:   %d
Compliant Runs:     %d
Total Proceeds:     $%s
Duration:           %v

Partner Type Distribution
-------------------------
`, stats.TotalPartnerships, stats.Transactions, stats.CompletedRuns, stats.FailedRuns,
		stats.TrueUps, stats.CompliantRuns, stats.TotalProceeds.StringFixed(2),
		duration.Round(time.Millisecond))

	// Print partner type distribution with simple ASCII bar chart
	maxTypeCount := 0
	for _, count := range stats.PartnerTypes {
		if count > maxTypeCount {
			maxTypeCount = count
		}
	}
	for partnerType, count := range stats.PartnerTypes {
		barLength := int(float64(count) / float64(maxTypeCount) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-16s: %s (%d)\n", partnerType, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	// Success rate calculation
	successRate := 0.0
	if stats.TotalPartnerships > 0 {
		successRate = float64(stats.CompletedRuns) / float64(stats.TotalPartnerships) * 100
	}
	log.Info().
		Float64("success_rate", successRate).
		Int("total_partnerships", stats.TotalPartnerships).
		Int("completed_runs", stats.CompletedRuns).
		Str("total_proceeds", stats.TotalProceeds.StringFixed(2)).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// createPartnershipsHTTP generates and submits random partnerships to the API
// Runs as a worker goroutine, sending created partnerships to partnershipsChan
func createPartnershipsHTTP(workerID, numPartnerships int, simClient *simulationClient, partnershipsChan chan<- *partnership.Response) {
	for i := 0; i < numPartnerships; i++ {
		req := randomPartnership(workerID)

		result, err := simClient.createPartnership(req)
		if err != nil {
			log.Error().Err(err).
				Str("worker_id", fmt.Sprintf("%d", workerID)).
				Str("name", req.Name).
				Msg("Failed to create partnership")
			continue
		}

		partnershipsChan <- result
		log.Info().
			Str("worker_id", fmt.Sprintf("%d", workerID)).
			Str("partnership_id", result.Partnership.PartnershipID).
			Str("name", req.Name).
			Int("partners", len(result.Partners)).
			Msg("Partnership created")

		// Random sleep between partnerships
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
	}
}

// startServer initializes and starts the allocation API server
// Sets up all required services, handlers and routes
func startServer() error {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService(string(auth.JWTSecret()))
	partnershipService := partnership.NewService(db)
	ledgerService := ledger.NewService(db, partnershipService)
	allocationService := allocation.NewService(db)

	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	partnershipHandlers := partnership.NewGinHandlers(partnershipService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	allocationHandlers := allocation.NewGinHandlers(allocationService)
	basisHandlers := basis.NewGinHandlers()

	// Setup routes
	setupRoutes(router, authHandlers, partnershipHandlers, ledgerHandlers, allocationHandlers, basisHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality; auth middleware is skipped so the
// simulation exercises the handlers directly
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	partnershipHandlers *partnership.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	allocationHandlers *allocation.GinHandlers,
	basisHandlers *basis.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Partnership routes
		partnerships := v1.Group("/partnerships")
		{
			partnerships.POST("", partnershipHandlers.CreatePartnershipHandler())
			partnerships.GET("/:partnership_id", partnershipHandlers.GetPartnershipHandler())
			partnerships.GET("/:partnership_id/capital-accounts", ledgerHandlers.GetCapitalAccountsHandler())
			partnerships.POST("/:partnership_id/transactions", ledgerHandlers.RecordTransactionHandler())
			partnerships.GET("/:partnership_id/audit-trail", ledgerHandlers.GetAuditTrailHandler())
			partnerships.POST("/:partnership_id/allocations/calculate", allocationHandlers.CalculateHandler())
			partnerships.GET("/:partnership_id/allocations/:run_id", allocationHandlers.GetRunHandler())
			partnerships.POST("/:partnership_id/basis-adjustment", basisHandlers.AdjustmentHandler())
			partnerships.GET("/:partnership_id/compliance-report", allocationHandlers.ComplianceReportHandler())
		}
	}
}
