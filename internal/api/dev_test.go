package api_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/vault-engine/internal/api"
	"github.com/atmx/vault-engine/internal/gateway"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

func TestDevLedgers(t *testing.T) {
	led := gateway.NewMemoryLedger(custody)
	r := chi.NewRouter()
	api.DevLedgers{assetA: led}.Mount(r)

	post := func(path, body string) int {
		req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := post("/api/v1/dev/mint", `{"asset":"ledger-a","account":"alice","amount":"500"}`); code != http.StatusOK {
		t.Fatalf("mint: %d", code)
	}
	if code := post("/api/v1/dev/approve", `{"asset":"ledger-a","account":"alice","amount":"200"}`); code != http.StatusOK {
		t.Fatalf("approve: %d", code)
	}
	alice := model.NewAccount("alice")
	if !led.BalanceOf(alice).Equal(num.NewNat(500)) || !led.Allowance(alice).Equal(num.NewNat(200)) {
		t.Errorf("balance %s allowance %s", led.BalanceOf(alice), led.Allowance(alice))
	}

	if code := post("/api/v1/dev/mint", `{"asset":"ledger-b","account":"alice","amount":"1"}`); code != http.StatusBadRequest {
		t.Errorf("unknown asset: expected 400, got %d", code)
	}
}

func TestDevLedgers_FundThenDeposit(t *testing.T) {
	env := newTestEnv(t, nil)
	api.DevLedgers{assetA: env.ledA, assetB: env.ledB}.Mount(env.router)

	for _, path := range []string{"/api/v1/dev/mint", "/api/v1/dev/approve"} {
		w := env.do(t, "POST", path, "", map[string]string{"asset": "ledger-a", "account": "dana", "amount": "75"})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
	}

	w := env.do(t, "POST", "/api/v1/vault/deposit", "dana", map[string]string{"amount": "75"})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit after faucet: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	bal := decode[api.BalanceResponse](t, env.do(t, "GET", "/api/v1/vault/balance?account=dana", "", nil))
	if !bal.Balance.Equal(num.NewNat(75)) {
		t.Errorf("balance = %s, want 75", bal.Balance)
	}
}
