package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"papertrade/internal/engine"
	"papertrade/internal/ledger"
	"papertrade/internal/risk"
	"papertrade/internal/strategy"
)

// amountRequest accepts the amount as a JSON string ("100.5") or number (100.5).
type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

type listTradesQuery struct {
	Limit int `form:"limit"`
}

type listFlowsQuery struct {
	Asset string `form:"asset"`
	Limit int    `form:"limit"`
}

func (q *listTradesQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func (q *listFlowsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps core errors onto HTTP status codes.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, ledger.ErrInvalidAsset):
		respondError(c, http.StatusBadRequest, "INVALID_ASSET", err.Error())
	case errors.Is(err, ledger.ErrInvalidUser):
		respondError(c, http.StatusBadRequest, "INVALID_USER", err.Error())
	case errors.Is(err, risk.ErrInvalidConfig):
		respondError(c, http.StatusBadRequest, "INVALID_RISK_CONFIG", err.Error())
	case errors.Is(err, engine.ErrUnknownAsset):
		respondError(c, http.StatusNotFound, "UNKNOWN_ASSET", err.Error())
	case errors.Is(err, ledger.ErrNoInvestment):
		respondError(c, http.StatusNotFound, "NO_INVESTMENT", err.Error())
	case errors.Is(err, engine.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ledger.ErrInsufficientWithdrawable):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_WITHDRAWABLE", err.Error())
	case errors.Is(err, ledger.ErrInsufficientCapital):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_CAPITAL", err.Error())
	case errors.Is(err, ledger.ErrInsufficientPosition):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_POSITION", err.Error())
	case errors.Is(err, strategy.ErrPriceUnavailable):
		respondError(c, http.StatusBadGateway, "PRICE_UNAVAILABLE", err.Error())
	case errors.Is(err, strategy.ErrExternalSignal):
		respondError(c, http.StatusBadGateway, "EXTERNAL_SIGNAL_FAILED", err.Error())
	default:
		log.Printf("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// assetParam validates the :asset path segment. It writes the error response itself.
func assetParam(c *gin.Context) (ledger.AssetID, bool) {
	asset, err := ledger.ParseAssetID(c.Param("asset"))
	if err != nil {
		respondEngineError(c, err)
		return "", false
	}
	return asset, true
}

// currentUser resolves the authenticated user as a ledger participant.
func currentUser(c *gin.Context) (ledger.UserID, bool) {
	user, err := ledger.ParseUserID(CurrentUserID(c))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return "", false
	}
	return user, true
}

// listAssets returns a summary of every configured or held asset.
func (s *Server) listAssets(c *gin.Context) {
	assets, err := s.Engine.ListAssets(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, assets)
}

func (s *Server) getAsset(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	summary, err := s.Engine.GetAsset(c.Request.Context(), asset)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// deposit credits paper money to the caller's share of an asset pool.
func (s *Server) deposit(c *gin.Context) {
	s.capitalFlow(c, s.Engine.Deposit)
}

// withdraw pays out part of the caller's share, net of the withdrawal fee.
func (s *Server) withdraw(c *gin.Context) {
	s.capitalFlow(c, s.Engine.Withdraw)
}

type flowFunc func(ctx context.Context, user ledger.UserID, asset ledger.AssetID, amount decimal.Decimal) (*engine.FlowResult, error)

func (s *Server) capitalFlow(c *gin.Context, apply flowFunc) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "amount must be a decimal string or number")
		return
	}
	if !req.Amount.IsPositive() {
		respondEngineError(c, ledger.ErrInvalidAmount)
		return
	}

	res, err := apply(c.Request.Context(), user, asset, req.Amount)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getPerformance(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	perf, err := s.Engine.GetPerformance(c.Request.Context(), asset)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

// getInvestment returns the caller's deposits, withdrawals, share and current value.
func (s *Server) getInvestment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	details, err := s.Engine.GetInvestment(c.Request.Context(), user, asset)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) getTrades(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	trades, err := s.Engine.ListTrades(c.Request.Context(), asset, q.Limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	if trades == nil {
		trades = []ledger.TradeRecord{}
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, trades)
}

// getReport returns the last stored cycle report of an asset.
func (s *Server) getReport(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	report, err := s.Engine.GetReport(c.Request.Context(), asset)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// runCycle runs one strategy cycle now. An aborted cycle still answers 200 with its
// failure report; only errors before the cycle starts are mapped to status codes.
func (s *Server) runCycle(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	res, err := s.Engine.RunCycle(c.Request.Context(), asset)
	if res == nil {
		if err == nil {
			err = errors.New("cycle produced no result")
		}
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getCapital(c *gin.Context) {
	info, err := s.Engine.GetCapital(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// getFlows returns the caller's deposits and withdrawals, newest first.
func (s *Server) getFlows(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var q listFlowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	var asset ledger.AssetID
	if q.Asset != "" {
		parsed, err := ledger.ParseAssetID(q.Asset)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		asset = parsed
	}

	flows, err := s.Engine.ListFlows(c.Request.Context(), user, asset, q.Limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, flows)
}

func (s *Server) getRisk(c *gin.Context) {
	info, err := s.Engine.GetRisk(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// updateRiskConfig applies a partial JSON patch over the active risk config.
func (s *Server) updateRiskConfig(c *gin.Context) {
	current, err := s.Engine.GetRisk(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	cfg := current.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	info, err := s.Engine.UpdateRiskConfig(c.Request.Context(), cfg)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	log.Printf("[API] risk config updated by %s", CurrentUserID(c))
	c.JSON(http.StatusOK, info)
}

// resetLedger wipes all paper-trading state. The body must carry {"confirm": true}.
func (s *Server) resetLedger(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		respondError(c, http.StatusBadRequest, "CONFIRMATION_REQUIRED", `reset requires {"confirm": true}`)
		return
	}
	if err := s.Engine.Reset(c.Request.Context()); err != nil {
		respondEngineError(c, err)
		return
	}
	log.Printf("[API] ledger reset by %s", CurrentUserID(c))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// getSystemStatus exposes runtime mode and configured assets for the dashboard.
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetSystemStatus(c.Request.Context()))
}

// getMetrics returns system performance metrics.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	snapshot := s.Metrics.GetSnapshot()
	c.JSON(http.StatusOK, snapshot)
}
