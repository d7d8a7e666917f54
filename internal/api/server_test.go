package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsmhmt/paycrypt-sub000/internal/address"
	"github.com/arsmhmt/paycrypt-sub000/internal/audit"
	"github.com/arsmhmt/paycrypt-sub000/internal/config"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/fraud"
	"github.com/arsmhmt/paycrypt-sub000/internal/ledger"
	"github.com/arsmhmt/paycrypt-sub000/internal/metrics"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage/memory"
	"github.com/arsmhmt/paycrypt-sub000/internal/wallet"
	"github.com/arsmhmt/paycrypt-sub000/internal/withdrawal"
)

const tronAddr = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

type testEnv struct {
	store    *memory.Store
	handler  http.Handler
	clientID int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	clientID := store.AddClient(&domain.Client{
		Name:                     "acme",
		DepositCommissionRate:    decimal.RequireFromString("0.01"),
		WithdrawalCommissionRate: decimal.Zero,
		CreatedAt:                time.Now().Add(-90 * 24 * time.Hour),
	})
	store.AddPayment(&domain.Payment{
		ClientID: clientID,
		Amount:   decimal.NewFromInt(100),
		Currency: "USDT",
		Status:   domain.PaymentCompleted,
	})

	catalog := config.DefaultCatalog()
	gate, err := fraud.NewGate(fraud.DefaultConfig(), fraud.NewMemoryBlacklist(), nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := ledger.New(store, catalog, nil)
	machine := withdrawal.NewMachine(store, l, gate, address.NewValidator(catalog.Networks()), catalog, nil,
		withdrawal.WithAudit(&audit.Recorder{}),
		withdrawal.WithMetrics(m),
	)
	registry := wallet.NewRegistry(store, nil, exchange.Options{}, nil)
	sync := wallet.NewSyncService(store, registry, wallet.SyncConfig{}, nil, wallet.WithSyncMetrics(m))

	return &testEnv{
		store:    store,
		handler:  NewServer(machine, l, registry, sync, reg, nil).Router(),
		clientID: clientID,
	}
}

func (e *testEnv) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, amount string) *domain.WithdrawalRequest {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/withdrawals", "", map[string]any{
		"client_id": e.clientID,
		"amount":    amount,
		"currency":  "USDT",
		"address":   tronAddr,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var req domain.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &req))
	return &req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_WithdrawalLifecycle(t *testing.T) {
	env := newTestEnv(t)
	req := env.create(t, "20")
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, address.NetworkTron, req.Network)

	base := fmt.Sprintf("/api/withdrawals/%d", req.ID)

	t.Run("처리 주체 없이 승인", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/approve", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "actor_id", decodeError(t, rec).Field)
	})

	t.Run("승인", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/approve", "admin-1", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp approveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.StatusApproved, resp.Request.Status)
		assert.Equal(t, "admin-1", resp.Request.ApprovedBy)
		require.NotNil(t, resp.Alert)
		assert.Equal(t, domain.RiskLow, resp.Alert.Level)
	})

	t.Run("승인 후 거절은 충돌", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/reject", "admin-2", reasonRequest{Reason: "late"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, string(domain.StatusApproved), resp.From)
		assert.Equal(t, string(domain.StatusRejected), resp.To)
		assert.True(t, resp.Conflict)
	})

	var executionID int64
	t.Run("처리 시작", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/process", "", nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var wd domain.Withdrawal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wd))
		assert.Equal(t, req.ID, wd.RequestID)
		executionID = wd.ID
	})

	t.Run("완료", func(t *testing.T) {
		path := fmt.Sprintf("/api/executions/%d/complete", executionID)
		rec := env.do(t, http.MethodPost, path, "", completeRequest{TxReference: "0xabc"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = env.do(t, http.MethodGet, base, "", nil)
		var got domain.WithdrawalRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, domain.StatusCompleted, got.Status)
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"잔고 부족", http.MethodPost, "/api/withdrawals", map[string]any{
			"client_id": env.clientID, "amount": "500", "currency": "USDT", "address": tronAddr,
		}, http.StatusUnprocessableEntity},
		{"지원하지 않는 통화", http.MethodPost, "/api/withdrawals", map[string]any{
			"client_id": env.clientID, "amount": "1", "currency": "FOO", "address": tronAddr,
		}, http.StatusBadRequest},
		{"알 수 없는 필드", http.MethodPost, "/api/withdrawals", map[string]any{"bogus": 1}, http.StatusBadRequest},
		{"없는 요청", http.MethodGet, "/api/withdrawals/9999", nil, http.StatusNotFound},
		{"잘못된 ID", http.MethodGet, "/api/withdrawals/abc", nil, http.StatusBadRequest},
		{"없는 고객사", http.MethodGet, "/api/clients/9999/balance", nil, http.StatusNotFound},
		{"알 수 없는 상태 필터", http.MethodGet, "/api/withdrawals?status=DONE", nil, http.StatusBadRequest},
		{"기본 공급자 없음", http.MethodGet, "/api/providers/primary", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, "admin-1", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_CancelByOtherClient(t *testing.T) {
	env := newTestEnv(t)
	req := env.create(t, "20")
	path := fmt.Sprintf("/api/withdrawals/%d/cancel", req.ID)
	owner := strconv.FormatInt(env.clientID, 10)
	other := strconv.FormatInt(env.clientID+41, 10)

	tests := []struct {
		name  string
		actor string
		body  any
		field string
	}{
		{"처리 주체 없음", "", cancelRequest{ClientID: env.clientID}, "actor_id"},
		{"숫자가 아닌 처리 주체", "admin-1", nil, "actor_id"},
		{"다른 고객사가 본문에 소유자 ID를 넣음", other, cancelRequest{ClientID: env.clientID}, "client_id"},
		{"다른 고객사", other, nil, "client_id"},
		{"헤더와 본문 불일치", owner, cancelRequest{ClientID: env.clientID + 41}, "client_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, path, tt.actor, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decodeError(t, rec).Field)
		})
	}

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/withdrawals/%d", req.ID), "", nil)
	var stored domain.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, domain.StatusPending, stored.Status)

	rec = env.do(t, http.MethodPost, path, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestServer_BulkApprove(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, "10")
	second := env.create(t, "10")

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/withdrawals/%d/reject", second.ID), "admin-1",
		reasonRequest{Reason: "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/withdrawals/bulk/approve", "admin-1",
		bulkRequest{IDs: []int64{second.ID, first.ID, 9999}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result withdrawal.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []int64{first.ID}, result.Processed)
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, withdrawal.SkipStatusConflict, result.Skipped[0].Reason)
	assert.Equal(t, withdrawal.SkipNotFound, result.Skipped[1].Reason)
}

func TestServer_ClientBalance(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "20")

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/clients/%d/balance", env.clientID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// 100 - 20(대기 중 예약) - 1(입금 수수료 1%)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(79)), "balance=%s", resp.Balance)
	assert.True(t, resp.Commission.Deposit.Equal(decimal.NewFromInt(1)))
}

func TestServer_Providers(t *testing.T) {
	env := newTestEnv(t)
	cold := &domain.WalletProvider{
		Name:       "cold",
		Type:       domain.ProviderManualWallet,
		Priority:   2,
		IsActive:   true,
		Currencies: []domain.ProviderCurrency{{Code: "BTC", Enabled: true}},
	}
	hot := &domain.WalletProvider{
		Name:       "hot",
		Type:       domain.ProviderManualWallet,
		Priority:   1,
		IsActive:   true,
		Currencies: []domain.ProviderCurrency{{Code: "BTC", Enabled: true}},
	}
	env.store.AddProvider(cold)
	env.store.AddProvider(hot)

	rec := env.do(t, http.MethodGet, "/api/providers/currency/btc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.WalletProvider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "hot", got.Name)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/providers/%d/primary", cold.ID), "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/providers/primary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cold", got.Name)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/providers/%d/sync", hot.ID), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/providers/%d/test", hot.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result domain.ConnectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK, "주소가 없는 수동 지갑은 연결 테스트에 실패합니다")
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "20")

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paycrypt_withdrawal_transitions_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"검증", domain.NewValidationError("amount", "x"), http.StatusBadRequest},
		{"없음", fmt.Errorf("조회: %w", domain.ErrNotFound), http.StatusNotFound},
		{"전이", domain.NewTransitionError(1, domain.StatusApproved, domain.StatusRejected), http.StatusConflict},
		{"잔고", &domain.InsufficientBalanceError{}, http.StatusUnprocessableEntity},
		{"차단", &domain.FraudBlockError{RequestID: 1}, http.StatusLocked},
		{"기타", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
