package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/config"
	"github.com/kalefund/fundgate/internal/custody"
	"github.com/kalefund/fundgate/internal/ledger"
	"github.com/kalefund/fundgate/internal/middleware"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/repository"
	"github.com/kalefund/fundgate/internal/risk"
	"github.com/kalefund/fundgate/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			RequireCallerID: true,
			AdminKey:        "admin",
		},
	}

	store := repository.NewMemoryStore()
	ledgerSvc := ledger.New(store, custody.NewSimulatedCustody())
	engine := risk.New(store)
	fundSvc := service.NewFundService(store, ledgerSvc, engine, model.RebalanceConfig{
		MinRebalanceAmount:    model.NewAmount(1_000),
		MaxSlippageBps:        200,
		RebalanceFrequency:    3600,
		MaxTradesPerRebalance: 5,
	})
	handler := NewFundHandler(fundSvc, ledgerSvc, "KALE")

	router := gin.New()
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.POST("/fund/deposits", handler.Deposit)
	v1.POST("/fund/withdrawals", handler.Withdraw)
	v1.GET("/fund/accounts/:participant", handler.GetAccount)

	admin := v1.Group("")
	admin.Use(middleware.AdminMiddleware(cfg))
	admin.POST("/fund/initialize", handler.Initialize)

	return router
}

func doJSON(router *gin.Engine, method, path, caller string, adminKey string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.HeaderCallerID, caller)
	}
	if adminKey != "" {
		req.Header.Set(middleware.HeaderAdminKey, adminKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func initializeFund(t *testing.T, router *gin.Engine) {
	t.Helper()
	rec := doJSON(router, http.MethodPost, "/v1/fund/initialize", "alice", "admin", map[string]any{
		"min_deposit":                  "1000000",
		"max_deposit":                  "10000000000",
		"lock_period":                  2592000,
		"withdrawal_fee_bps":           100,
		"early_withdrawal_penalty_bps": 500,
		"referral_bonus_bps":           50,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("initialize failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestInitializeRequiresAdminKey(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/v1/fund/initialize", "alice", "", map[string]any{
		"min_deposit": "1000000",
		"max_deposit": "10000000000",
		"lock_period": 2592000,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", rec.Code)
	}

	rec = doJSON(router, http.MethodPost, "/v1/fund/initialize", "alice", "wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong admin key, got %d", rec.Code)
	}
}

func TestInitializeDefaultsSettlementAsset(t *testing.T) {
	router := newTestRouter(t)
	initializeFund(t, router)

	rec := doJSON(router, http.MethodGet, "/v1/fund/accounts/alice", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading account, got %d", rec.Code)
	}
}

func TestDepositWithdrawFlow(t *testing.T) {
	router := newTestRouter(t)
	initializeFund(t, router)

	rec := doJSON(router, http.MethodPost, "/v1/fund/deposits", "alice", "", map[string]any{
		"amount":       "10000000",
		"risk_profile": "moderate",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d %s", rec.Code, rec.Body.String())
	}
	var dep map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &dep); err != nil {
		t.Fatalf("invalid deposit response: %v", err)
	}
	if dep["new_balance"] != "10000000" {
		t.Fatalf("expected new_balance 10000000, got %v", dep["new_balance"])
	}

	// withdrawal inside the lock window pays fee and penalty
	rec = doJSON(router, http.MethodPost, "/v1/fund/withdrawals", "alice", "", map[string]any{
		"amount": "5000000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw failed: %d %s", rec.Code, rec.Body.String())
	}
	var wd map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &wd); err != nil {
		t.Fatalf("invalid withdraw response: %v", err)
	}
	if wd["fee"] != "50000" || wd["penalty"] != "250000" || wd["net_amount"] != "4700000" {
		t.Fatalf("unexpected withdrawal breakdown: %s", rec.Body.String())
	}

	rec = doJSON(router, http.MethodGet, "/v1/fund/accounts/alice", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("account read failed: %d", rec.Code)
	}
	var acct map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &acct); err != nil {
		t.Fatalf("invalid account response: %v", err)
	}
	if acct["balance"] != "5000000" {
		t.Fatalf("expected balance 5000000, got %v", acct["balance"])
	}
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	router := newTestRouter(t)
	initializeFund(t, router)

	rec := doJSON(router, http.MethodPost, "/v1/fund/deposits", "alice", "", map[string]any{
		"amount":       "2000000",
		"risk_profile": "conservative",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(router, http.MethodPost, "/v1/fund/withdrawals", "alice", "", map[string]any{
		"amount": "3000000",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error response: %v", err)
	}
	if resp["code"] != "INSUFFICIENT_BALANCE" {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", resp["code"])
	}
}

func TestDepositBeforeInitialize(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/v1/fund/deposits", "alice", "", map[string]any{
		"amount":       "2000000",
		"risk_profile": "conservative",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before initialize, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMissingCallerRejected(t *testing.T) {
	router := newTestRouter(t)
	initializeFund(t, router)

	rec := doJSON(router, http.MethodPost, "/v1/fund/deposits", "", "", map[string]any{
		"amount":       "2000000",
		"risk_profile": "conservative",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller id, got %d", rec.Code)
	}
}
