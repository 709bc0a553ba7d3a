package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/shopspring/decimal"

	"github.com/abelt/coinflip-services/internal/flipsvc/models"
	"github.com/abelt/coinflip-services/internal/flipsvc/service"
	"github.com/abelt/coinflip-services/internal/flipsvc/store"
)

type Handler struct {
	tokenAuth  *jwtauth.JWTAuth
	matchStore *store.MatchStore
	ledger     *service.LedgerService
}

func NewHandler(matchStore *store.MatchStore, ledger *service.LedgerService) *Handler {
	return &Handler{matchStore: matchStore, ledger: ledger}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (rs *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

// MatchSnapshot is the read-only view of a match. Reveals are withheld
// until the match reaches a terminal state so a snapshot can never leak
// a secret mid-game.
type MatchSnapshot struct {
	ID            int64      `json:"id"`
	Creator       string     `json:"creator"`
	Joiner        string     `json:"joiner,omitempty"`
	BetAmount     int64      `json:"bet_amount"`
	CommitCreator string     `json:"commit_creator"`
	CommitJoiner  string     `json:"commit_joiner,omitempty"`
	RevealCreator string     `json:"reveal_creator,omitempty"`
	RevealJoiner  string     `json:"reveal_joiner,omitempty"`
	Winner        string     `json:"winner,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	JoinedAt      *time.Time `json:"joined_at,omitempty"`
}

func snapshot(m *models.Match) *MatchSnapshot {
	s := &MatchSnapshot{
		ID:            m.ID,
		Creator:       m.Creator,
		Joiner:        m.Joiner.String,
		BetAmount:     m.BetAmount,
		CommitCreator: hex.EncodeToString(m.CommitCreator),
		CommitJoiner:  hex.EncodeToString(m.CommitJoiner),
		Winner:        m.Winner.String,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
	}
	if m.JoinedAt.Valid {
		t := m.JoinedAt.Time
		s.JoinedAt = &t
	}
	if m.Terminal() {
		s.RevealCreator = hex.EncodeToString(m.RevealCreator)
		s.RevealJoiner = hex.EncodeToString(m.RevealJoiner)
	}
	return s
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "flip service is running at port " + os.Getenv("FLIP_SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid match id"})
		return
	}

	m, err := h.matchStore.GetMatchByID(r.Context(), matchID)
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to load match"})
		return
	}
	if m == nil {
		h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "match not found"})
		return
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: snapshot(m)})
}

// ListMatchesHandler returns matches by status, defaulting to open
// (joinable) ones.
func (h *Handler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.StatusCreated
	}

	matches, err := h.matchStore.ListByStatus(r.Context(), status, 100)
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to list matches"})
		return
	}

	snapshots := make([]*MatchSnapshot, 0, len(matches))
	for _, m := range matches {
		snapshots = append(snapshots, snapshot(m))
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: snapshots})
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to load balance"})
		return
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: map[string]string{
		"account": account,
		"balance": balance.StringFixed(0),
	}})
}

// DepositHandler credits an account from outside the protocol. Behind
// the JWT group; stands in for the payment gateway.
func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
		Ref     string `json:"ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "malformed deposit request"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || req.Account == "" || amount.IsNegative() || amount.IsZero() {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "deposit needs an account and a positive amount"})
		return
	}

	if err := h.ledger.Deposit(r.Context(), req.Account, amount, req.Ref); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to record deposit"})
		return
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Message: "deposit recorded"})
}
