package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/vault-engine/internal/gateway"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// DevLedgers exposes faucet endpoints for in-memory ledgers. Only mounted
// when the service runs without an external chain.
type DevLedgers map[model.Asset]*gateway.MemoryLedger

// LedgerRequest is the JSON body for the dev mint and approve endpoints.
type LedgerRequest struct {
	Asset   model.Asset   `json:"asset"`
	Account model.Account `json:"account"`
	Amount  num.Nat       `json:"amount"`
}

// Mount registers POST /api/v1/dev/mint and /api/v1/dev/approve.
func (d DevLedgers) Mount(r chi.Router) {
	r.Post("/api/v1/dev/mint", d.handle(func(l *gateway.MemoryLedger, req LedgerRequest) {
		l.Mint(req.Account, req.Amount)
	}))
	r.Post("/api/v1/dev/approve", d.handle(func(l *gateway.MemoryLedger, req LedgerRequest) {
		l.Approve(req.Account, req.Amount)
	}))
}

func (d DevLedgers) handle(apply func(*gateway.MemoryLedger, LedgerRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LedgerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		ledger, ok := d[req.Asset]
		if !ok {
			writeError(w, "unknown asset: "+string(req.Asset), http.StatusBadRequest)
			return
		}
		if req.Account.Owner == "" {
			writeError(w, "account is required", http.StatusBadRequest)
			return
		}
		apply(ledger, req)
		writeJSON(w, http.StatusOK, map[string]any{
			"account":   req.Account,
			"balance":   ledger.BalanceOf(req.Account),
			"allowance": ledger.Allowance(req.Account),
		})
	}
}
