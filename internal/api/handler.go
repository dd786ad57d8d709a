// Package api exposes the vault engine over HTTP and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/vault-engine/internal/cpmm"
	"github.com/atmx/vault-engine/internal/engine"
	"github.com/atmx/vault-engine/internal/gateway"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
	"github.com/atmx/vault-engine/internal/store"
)

// Handler serves the vault and pool endpoints.
type Handler struct {
	eng           *engine.Engine
	journal       store.Store
	operatorToken string
}

// NewHandler creates the HTTP handler set. An empty operatorToken disables
// the recovery endpoints.
func NewHandler(eng *engine.Engine, journal store.Store, operatorToken string) *Handler {
	return &Handler{eng: eng, journal: journal, operatorToken: operatorToken}
}

// Mount registers every endpoint under /api/v1 on r.
func (h *Handler) Mount(r chi.Router, hub *Hub) {
	r.Route("/api/v1", func(r chi.Router) {
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		// Public reads.
		r.Get("/vault/balance", h.Balance)
		r.Get("/pool", h.Pool)
		r.Get("/pool/reserves", h.Reserves)
		r.Get("/pool/lp-balance", h.LPBalance)
		r.Get("/pool/total-lp", h.TotalLP)
		r.Get("/pool/quote", h.Quote)

		// Caller-authenticated operations.
		r.Group(func(r chi.Router) {
			r.Use(RequireCaller)
			r.Post("/vault/deposit", h.Deposit)
			r.Post("/vault/withdraw", h.Withdraw)
			r.Post("/transfer", h.Transfer)
			r.Post("/pool/add", h.AddLiquidity)
			r.Post("/pool/remove", h.RemoveLiquidity)
			r.Post("/pool/swap", h.Swap)
			r.Get("/history", h.History)
		})

		// Operator recovery.
		r.Group(func(r chi.Router) {
			r.Use(RequireOperator(h.operatorToken))
			r.Get("/journal", h.RecentEntries)
			r.Get("/recovery", h.ListStranded)
			r.Post("/recovery/{id}/retry", h.RetryStranded)
		})
	})
}

// --- Request/Response types ---

// AmountRequest is the JSON body for POST /vault/deposit.
type AmountRequest struct {
	Amount num.Nat `json:"amount"`
}

// PayoutRequest is the JSON body for POST /vault/withdraw and /transfer.
// To defaults to the caller for withdrawals.
type PayoutRequest struct {
	Amount num.Nat        `json:"amount"`
	To     *model.Account `json:"to,omitempty"`
}

// ReceiptResponse carries the external ledger's block index for a transfer.
type ReceiptResponse struct {
	BlockIndex model.BlockIndex `json:"block_index"`
}

type BalanceResponse struct {
	Account model.Account `json:"account"`
	Balance num.Nat       `json:"balance"`
}

// AddLiquidityRequest is the JSON body for POST /pool/add.
type AddLiquidityRequest struct {
	AmountA num.Nat `json:"amount_a"`
	AmountB num.Nat `json:"amount_b"`
}

type AddLiquidityResponse struct {
	Minted num.Nat         `json:"minted"`
	Pool   model.PoolState `json:"pool"`
}

// RemoveLiquidityRequest is the JSON body for POST /pool/remove.
type RemoveLiquidityRequest struct {
	LPAmount num.Nat `json:"lp_amount"`
}

type RemoveLiquidityResponse struct {
	AmountA num.Nat `json:"amount_a"`
	AmountB num.Nat `json:"amount_b"`
}

// SwapRequest is the JSON body for POST /pool/swap.
type SwapRequest struct {
	AssetIn      model.Asset `json:"asset_in"`
	AmountIn     num.Nat     `json:"amount_in"`
	MinAmountOut num.Nat     `json:"min_amount_out"` // slippage floor; 0 accepts any output
}

type SwapResponse struct {
	AssetOut  model.Asset `json:"asset_out"`
	AmountOut num.Nat     `json:"amount_out"`
}

type ReservesResponse struct {
	ReserveA num.Nat `json:"reserve_a"`
	ReserveB num.Nat `json:"reserve_b"`
}

type LPBalanceResponse struct {
	Account model.Account `json:"account"`
	Shares  num.Nat       `json:"shares"`
}

type TotalLPResponse struct {
	TotalLP num.Nat `json:"total_lp"`
}

// --- Vault ---

// Deposit handles POST /api/v1/vault/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	idx, err := h.eng.Deposit(r.Context(), Caller(r.Context()), req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResponse{BlockIndex: idx})
}

// Withdraw handles POST /api/v1/vault/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	caller := Caller(r.Context())
	to := caller
	if req.To != nil {
		to = *req.To
	}
	idx, err := h.eng.Withdraw(r.Context(), caller, req.Amount, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResponse{BlockIndex: idx})
}

// Balance handles GET /api/v1/vault/balance?account=<account>
// Defaults to the caller when no account is given.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: acct, Balance: h.eng.Balance(acct)})
}

// Transfer handles POST /api/v1/transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.To == nil {
		writeError(w, "to is required", http.StatusBadRequest)
		return
	}
	idx, err := h.eng.Transfer(r.Context(), Caller(r.Context()), req.Amount, *req.To)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResponse{BlockIndex: idx})
}

// --- Pool ---

// AddLiquidity handles POST /api/v1/pool/add
func (h *Handler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req AddLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	minted, err := h.eng.AddLiquidity(r.Context(), Caller(r.Context()), req.AmountA, req.AmountB)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AddLiquidityResponse{Minted: minted, Pool: h.eng.Pool()})
}

// RemoveLiquidity handles POST /api/v1/pool/remove
func (h *Handler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req RemoveLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outA, outB, err := h.eng.RemoveLiquidity(r.Context(), Caller(r.Context()), req.LPAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveLiquidityResponse{AmountA: outA, AmountB: outB})
}

// Swap handles POST /api/v1/pool/swap
func (h *Handler) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	out, err := h.eng.Swap(r.Context(), Caller(r.Context()), req.AssetIn, req.AmountIn, req.MinAmountOut)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	a, b := h.eng.Assets()
	assetOut := a
	if req.AssetIn == a {
		assetOut = b
	}
	writeJSON(w, http.StatusOK, SwapResponse{AssetOut: assetOut, AmountOut: out})
}

// Reserves handles GET /api/v1/pool/reserves
func (h *Handler) Reserves(w http.ResponseWriter, r *http.Request) {
	ra, rb := h.eng.Reserves()
	writeJSON(w, http.StatusOK, ReservesResponse{ReserveA: ra, ReserveB: rb})
}

// LPBalance handles GET /api/v1/pool/lp-balance?account=<account>
func (h *Handler) LPBalance(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, LPBalanceResponse{Account: acct, Shares: h.eng.LPBalance(acct)})
}

// TotalLP handles GET /api/v1/pool/total-lp
func (h *Handler) TotalLP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TotalLPResponse{TotalLP: h.eng.TotalLP()})
}

// Pool handles GET /api/v1/pool
func (h *Handler) Pool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Pool())
}

// Quote handles GET /api/v1/pool/quote?asset_in=<asset>&amount_in=<n>
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amountIn, err := num.ParseNat(q.Get("amount_in"))
	if err != nil {
		writeError(w, "amount_in must be a non-negative integer", http.StatusBadRequest)
		return
	}
	quote, err := h.eng.Quote(model.Asset(q.Get("asset_in")), amountIn)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// History handles GET /api/v1/history
// Returns the caller's journal entries, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.journal.GetEntriesByAccount(r.Context(), Caller(r.Context()))
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Operator ---

// RecentEntries handles GET /api/v1/journal?limit=<n>
// Returns the newest journal entries across all accounts.
func (h *Handler) RecentEntries(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := h.journal.ListRecentEntries(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListStranded handles GET /api/v1/recovery
func (h *Handler) ListStranded(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Stranded())
}

// RetryStranded handles POST /api/v1/recovery/{id}/retry
func (h *Handler) RetryStranded(w http.ResponseWriter, r *http.Request) {
	rec, err := h.eng.RetryStranded(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Helpers ---

// accountParam reads ?account=, falling back to the X-Caller header.
func accountParam(w http.ResponseWriter, r *http.Request) (model.Account, bool) {
	raw := r.URL.Query().Get("account")
	if raw == "" {
		raw = r.Header.Get(CallerHeader)
	}
	if raw == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return model.Account{}, false
	}
	acct, err := model.ParseAccount(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return model.Account{}, false
	}
	return acct, true
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrStrandedNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInsufficientShares),
		errors.Is(err, engine.ErrNotRetryable),
		errors.Is(err, engine.ErrPoolBusy):
		return http.StatusConflict
	case errors.Is(err, cpmm.ErrNoLiquidity),
		errors.Is(err, cpmm.ErrZeroLPMinted),
		errors.Is(err, cpmm.ErrZeroAmountOut),
		errors.Is(err, engine.ErrSlippageExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrFault):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	var fault *gateway.Fault
	if errors.As(err, &fault) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
			"fault": string(fault.Code),
		})
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
