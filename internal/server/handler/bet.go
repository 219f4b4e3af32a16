package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"parimarket/internal/crypto"
	"parimarket/internal/domain"
)

// BetService defines what the bet handler needs from the service layer.
type BetService interface {
	Place(ctx context.Context, marketID uint64, outcome bool, amount uint64, bettor domain.Principal) (domain.Bet, error)
	Claim(ctx context.Context, marketID uint64, bettor domain.Principal) (uint64, error)
	Get(ctx context.Context, marketID uint64, bettor domain.Principal) (domain.Bet, error)
	ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet and claim endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the POST /api/markets/{id}/bets body. The
// signature's signer is the bettor whose account funds the stake.
type placeBetRequest struct {
	Outcome   bool   `json:"outcome"`
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
}

// PlaceBet stakes tokens on one outcome of an open market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	bettor, err := crypto.RecoverPrincipal(crypto.PlaceBetMessage(marketID, req.Outcome, req.Amount), req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	bet, err := h.bets.Place(r.Context(), marketID, req.Outcome, req.Amount, bettor)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: place bet failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place bet")
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// claimRequest is the POST /api/markets/{id}/claim body.
type claimRequest struct {
	Signature string `json:"signature"`
}

// claimResponse reports the paid-out winnings.
type claimResponse struct {
	MarketID uint64           `json:"market_id"`
	Bettor   domain.Principal `json:"bettor"`
	Winnings uint64           `json:"winnings"`
}

// ClaimWinnings pays out a winning bet's share, exactly once.
// POST /api/markets/{id}/claim
func (h *BetHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bettor, err := crypto.RecoverPrincipal(crypto.ClaimWinningsMessage(marketID), req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	winnings, err := h.bets.Claim(r.Context(), marketID, bettor)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: claim failed",
			slog.Uint64("market_id", marketID),
			slog.String("bettor", string(bettor)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to claim winnings")
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		MarketID: marketID,
		Bettor:   bettor,
		Winnings: winnings,
	})
}

// listBetsResponse wraps the list bets output.
type listBetsResponse struct {
	Bets []domain.Bet `json:"bets"`
}

// ListBets returns a market's bets in placement order.
// GET /api/markets/{id}/bets?limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bets, err := h.bets.ListByMarket(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}

	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}

// GetBet returns one bettor's bet on a market.
// GET /api/markets/{id}/bets/{bettor}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bettor := strings.ToLower(r.PathValue("bettor"))
	if bettor == "" {
		writeError(w, http.StatusBadRequest, "missing bettor address")
		return
	}

	bet, err := h.bets.Get(r.Context(), marketID, domain.Principal(bettor))
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get bet failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bet")
		return
	}

	writeJSON(w, http.StatusOK, bet)
}
