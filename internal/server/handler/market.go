package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"parimarket/internal/crypto"
	"parimarket/internal/domain"
	"parimarket/internal/service"
)

// MarketService defines what the market handler needs from the service
// layer. Declared locally so the handler does not depend on the
// concrete implementation.
type MarketService interface {
	Create(ctx context.Context, in service.CreateMarketInput) (domain.Market, error)
	Resolve(ctx context.Context, marketID uint64, winningOutcome bool, caller domain.Principal) (domain.Market, error)
	Get(ctx context.Context, marketID uint64) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Events(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the POST /api/markets body. The signature is a
// personal-message signature over the canonical create message; its
// signer becomes the market authority.
type createMarketRequest struct {
	MarketID     uint64 `json:"market_id"`
	Description  string `json:"description"`
	EndTime      int64  `json:"end_time"`
	MinBetAmount uint64 `json:"min_bet_amount"`
	Signature    string `json:"signature"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	authority, err := crypto.RecoverPrincipal(crypto.CreateMarketMessage(req.MarketID), req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	market, err := h.markets.Create(r.Context(), service.CreateMarketInput{
		MarketID:     req.MarketID,
		Description:  req.Description,
		EndTime:      req.EndTime,
		MinBetAmount: req.MinBetAmount,
		Authority:    authority,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.Uint64("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// resolveMarketRequest is the POST /api/markets/{id}/resolve body. Only
// a signature by the market authority is accepted.
type resolveMarketRequest struct {
	WinningOutcome bool   `json:"winning_outcome"`
	Signature      string `json:"signature"`
}

// ResolveMarket settles a market on its final outcome.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := crypto.RecoverPrincipal(crypto.ResolveMarketMessage(marketID, req.WinningOutcome), req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	market, err := h.markets.Resolve(r.Context(), marketID, req.WinningOutcome, caller)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to resolve market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets, newest first, with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	market, err := h.markets.Get(r.Context(), marketID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// listEventsResponse wraps the event log output.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
}

// ListEvents returns a market's event log in append order.
// GET /api/markets/{id}/events?limit=50&offset=0
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.markets.Events(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}
