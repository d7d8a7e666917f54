package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsmhmt/paycrypt-sub000/internal/audit"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func btcOnly() []domain.ProviderCurrency {
	return []domain.ProviderCurrency{{Code: "BTC", Enabled: true}}
}

// fakeAdapter는 호출마다 미리 정한 결과를 돌려줍니다
type fakeAdapter struct {
	calls    int32
	errs     []error
	balances map[string]domain.Balance
}

func (f *fakeAdapter) TestConnection(context.Context) (domain.ConnectionResult, error) {
	return domain.ConnectionResult{OK: true, Detail: "ok"}, nil
}

func (f *fakeAdapter) GetBalances(context.Context) (map[string]domain.Balance, error) {
	n := int(atomic.AddInt32(&f.calls, 1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	return f.balances, nil
}

func fakeRegistry(adapters map[string]*fakeAdapter) *exchange.Registry {
	r := DefaultAdapters()
	r.Register(domain.ProviderBinance, func(p *domain.WalletProvider, _ exchange.Options) (exchange.Adapter, error) {
		return adapters[p.Name], nil
	})
	return r
}

func TestRegistry_GetProviderForCurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := &domain.WalletProvider{Name: "A", Type: domain.ProviderBinance, Priority: 3, IsActive: true, Currencies: btcOnly()}
	b := &domain.WalletProvider{Name: "B", Type: domain.ProviderKraken, Priority: 1, IsActive: true, Currencies: btcOnly()}
	c := &domain.WalletProvider{Name: "C", Type: domain.ProviderCoinbase, Priority: 2, IsActive: true, Currencies: btcOnly()}
	inactive := &domain.WalletProvider{Name: "Z", Type: domain.ProviderCoinbase, Priority: 0, IsActive: false, Currencies: btcOnly()}
	disabled := &domain.WalletProvider{Name: "D", Type: domain.ProviderKraken, Priority: 0, IsActive: true,
		Currencies: []domain.ProviderCurrency{{Code: "BTC", Enabled: false}, {Code: "ETH", Enabled: true}}}
	for _, p := range []*domain.WalletProvider{a, b, c, inactive, disabled} {
		store.AddProvider(p)
	}
	r := NewRegistry(store, nil, exchange.Options{}, nil)

	got, err := r.GetProviderForCurrency(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)

	got, err = r.GetProviderForCurrency(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "D", got.Name)

	_, err = r.GetProviderForCurrency(ctx, "XRP")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = r.GetProviderForCurrency(ctx, " ")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRegistry_PriorityTieBreaksOnID(t *testing.T) {
	store := memory.NewStore()
	first := &domain.WalletProvider{Name: "first", Priority: 1, IsActive: true, Currencies: btcOnly()}
	second := &domain.WalletProvider{Name: "second", Priority: 1, IsActive: true, Currencies: btcOnly()}
	store.AddProvider(first)
	store.AddProvider(second)

	got, err := NewRegistry(store, nil, exchange.Options{}, nil).GetProviderForCurrency(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestRegistry_SetPrimary(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	providers := []*domain.WalletProvider{
		{Name: "A", IsActive: true, IsPrimary: true},
		{Name: "B", IsActive: true},
		{Name: "C", IsActive: false},
	}
	for _, p := range providers {
		store.AddProvider(p)
	}
	recorder := &audit.Recorder{}
	r := NewRegistry(store, nil, exchange.Options{}, nil, WithRegistryAudit(recorder))

	primary, err := r.GetPrimaryProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", primary.Name)

	_, err = r.SetPrimary(ctx, providers[1].ID, "admin")
	require.NoError(t, err)

	all, err := store.ListProviders(ctx, false)
	require.NoError(t, err)
	var count int
	for _, p := range all {
		if p.IsPrimary {
			count++
			assert.Equal(t, "B", p.Name)
		}
	}
	assert.Equal(t, 1, count, "기본 공급자는 정확히 하나여야 합니다")
	require.Len(t, recorder.Events(), 1)
	assert.Equal(t, audit.ActionSetPrimary, recorder.Events()[0].Action)

	t.Run("비활성 공급자", func(t *testing.T) {
		_, err := r.SetPrimary(ctx, providers[2].ID, "admin")
		assert.True(t, errors.Is(err, domain.ErrValidation))

		primary, err := r.GetPrimaryProvider(ctx)
		require.NoError(t, err)
		assert.Equal(t, "B", primary.Name)
	})

	t.Run("없는 공급자", func(t *testing.T) {
		_, err := r.SetPrimary(ctx, 9999, "admin")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestRegistry_NoPrimary(t *testing.T) {
	store := memory.NewStore()
	store.AddProvider(&domain.WalletProvider{Name: "A", IsActive: true})

	_, err := NewRegistry(store, nil, exchange.Options{}, nil).GetPrimaryProvider(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistry_AdapterFor(t *testing.T) {
	r := NewRegistry(memory.NewStore(), nil, exchange.Options{}, nil)

	for _, typ := range []domain.ProviderType{
		domain.ProviderBinance, domain.ProviderCoinbase, domain.ProviderKraken, domain.ProviderManualWallet,
	} {
		a, err := r.AdapterFor(&domain.WalletProvider{Name: string(typ), Type: typ})
		require.NoError(t, err, typ)
		assert.NotNil(t, a)
	}

	_, err := r.AdapterFor(&domain.WalletProvider{Name: "x", Type: "bitfinex"})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedAdapter))
}

func newSyncService(store *memory.Store, adapters *exchange.Registry, opts ...SyncOption) *SyncService {
	registry := NewRegistry(store, adapters, exchange.Options{}, nil)
	return NewSyncService(store, registry, SyncConfig{
		Retry:       RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Concurrency: 2,
	}, nil, opts...)
}

func TestSyncService_SyncProvider_Success(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := &domain.WalletProvider{Name: "main", Type: domain.ProviderBinance, IsActive: true}
	store.AddProvider(p)

	adapter := &fakeAdapter{balances: map[string]domain.Balance{
		"BTC": {Asset: "BTC", Available: d("1.5"), Locked: d("0.5")},
	}}
	svc := newSyncService(store, fakeRegistry(map[string]*fakeAdapter{"main": adapter}))

	balances, err := svc.SyncProvider(ctx, p)
	require.NoError(t, err)
	assert.Len(t, balances, 1)

	stored, err := store.ListBalances(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Total.Equal(d("2")))
	assert.Equal(t, domain.SourceAPI, stored[0].UpdateSource)

	updated, err := store.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, updated.HealthStatus)
	assert.NotNil(t, updated.LastSyncAt)
}

func TestSyncService_RetriesOnlyTimeouts(t *testing.T) {
	ctx := context.Background()
	timeout := domain.NewProviderError("main", "GetBalances", domain.ErrProviderTimeout, context.DeadlineExceeded)
	auth := domain.NewProviderError("main", "GetBalances", domain.ErrProviderAuth, errors.New("401"))

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int32
	}{
		{"타임아웃 후 성공", []error{timeout, timeout}, nil, 3},
		{"타임아웃 반복", []error{timeout, timeout, timeout}, domain.ErrProviderTimeout, 3},
		{"인증 실패는 재시도 안 함", []error{auth}, domain.ErrProviderAuth, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			p := &domain.WalletProvider{Name: "main", Type: domain.ProviderBinance, IsActive: true}
			store.AddProvider(p)
			adapter := &fakeAdapter{errs: tt.errs, balances: map[string]domain.Balance{
				"ETH": {Asset: "ETH", Available: d("1")},
			}}
			svc := newSyncService(store, fakeRegistry(map[string]*fakeAdapter{"main": adapter}))

			_, err := svc.SyncProvider(ctx, p)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "err=%v", err)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&adapter.calls))
		})
	}
}

func TestSyncService_KrakenErrorKeepsStaleBalances(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": ["EAPI:Invalid nonce"]}`))
	}))
	defer srv.Close()

	store := memory.NewStore()
	p := &domain.WalletProvider{
		Name:     "kraken",
		Type:     domain.ProviderKraken,
		APIURL:   srv.URL,
		IsActive: true,
		Credentials: domain.Credentials{
			APIKey:    "key",
			APISecret: base64.StdEncoding.EncodeToString([]byte("secret")),
		},
	}
	store.AddProvider(p)
	lastGood := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.PutBalance(&domain.WalletBalance{
		ProviderID:   p.ID,
		Currency:     "ETH",
		Available:    d("4.2"),
		Total:        d("4.2"),
		LastUpdated:  lastGood,
		UpdateSource: domain.SourceAPI,
	})

	notifier := &countingNotifier{}
	svc := newSyncService(store, nil, WithSyncNotifier(notifier))

	_, err := svc.SyncProvider(ctx, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderResponse), "err=%v", err)

	updated, err := store.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthError, updated.HealthStatus)
	assert.Contains(t, updated.HealthDetail, "EAPI:Invalid nonce")

	stored, err := store.ListBalances(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Total.Equal(d("4.2")))
	assert.True(t, stored[0].LastUpdated.Equal(lastGood))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notifier.providerErrors))
}

func TestSyncService_PassiveAdapterKeepsManualSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := &domain.WalletProvider{Name: "cold", Type: domain.ProviderManualWallet, IsActive: true}
	store.AddProvider(p)
	store.PutBalance(&domain.WalletBalance{
		ProviderID:   p.ID,
		Currency:     "BTC",
		Available:    d("10"),
		Total:        d("10"),
		UpdateSource: domain.SourceManual,
	})

	svc := newSyncService(store, nil)
	balances, err := svc.SyncProvider(ctx, p)
	require.NoError(t, err)
	assert.True(t, balances["BTC"].Available.Equal(d("10")))

	stored, err := store.ListBalances(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.SourceManual, stored[0].UpdateSource)
}

func TestSyncService_SyncAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	good := &domain.WalletProvider{Name: "good", Type: domain.ProviderBinance, IsActive: true}
	bad := &domain.WalletProvider{Name: "bad", Type: domain.ProviderBinance, IsActive: true}
	off := &domain.WalletProvider{Name: "off", Type: domain.ProviderBinance, IsActive: false}
	for _, p := range []*domain.WalletProvider{good, bad, off} {
		store.AddProvider(p)
	}

	offAdapter := &fakeAdapter{}
	adapters := map[string]*fakeAdapter{
		"good": {balances: map[string]domain.Balance{"BTC": {Asset: "BTC", Available: d("1")}}},
		"bad": {errs: []error{
			domain.NewProviderError("bad", "GetBalances", domain.ErrProviderAuth, errors.New("401")),
		}},
		"off": offAdapter,
	}
	svc := newSyncService(store, fakeRegistry(adapters))

	err := svc.Execute(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderAuth))
	assert.Zero(t, atomic.LoadInt32(&offAdapter.calls), "비활성 공급자는 동기화하지 않습니다")

	goodBalances, err := store.ListBalances(ctx, good.ID)
	require.NoError(t, err)
	assert.Len(t, goodBalances, 1, "다른 공급자의 실패와 무관하게 저장됩니다")

	badProvider, err := store.GetProvider(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthError, badProvider.HealthStatus)
}

func TestSyncService_LockPreventsOverlap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := &domain.WalletProvider{Name: "main", Type: domain.ProviderBinance, IsActive: true}
	store.AddProvider(p)

	locker := NewMemoryLocker()
	release, ok, err := locker.TryLock(ctx, "wallet:sync:"+strconv.FormatInt(p.ID, 10), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	adapter := &fakeAdapter{}
	svc := newSyncService(store, fakeRegistry(map[string]*fakeAdapter{"main": adapter}), WithLocker(locker))

	_, err = svc.SyncProvider(ctx, p)
	assert.True(t, errors.Is(err, ErrSyncInProgress))
	assert.Zero(t, atomic.LoadInt32(&adapter.calls))

	release()
	_, err = svc.SyncProvider(ctx, p)
	assert.NoError(t, err)
}

func TestSyncService_TestProvider(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := &domain.WalletProvider{Name: "cold", Type: domain.ProviderManualWallet, IsActive: true}
	store.AddProvider(p)

	svc := newSyncService(store, nil)
	result, err := svc.TestProvider(ctx, p.ID)
	assert.Error(t, err, "주소가 없는 수동 지갑은 실패합니다")
	assert.False(t, result.OK)

	updated, err := store.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthError, updated.HealthStatus)
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	now := time.Now()
	l.clock = func() time.Time { return now }

	release, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	release2, ok, _ := l.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok, "만료된 잠금은 다시 잡을 수 있습니다")

	release()
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok, "이전 소유자의 해제가 새 잠금을 풀면 안 됩니다")

	release2()
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}

type countingNotifier struct {
	providerErrors int32
}

func (n *countingNotifier) SendFraudWarning(*domain.WithdrawalRequest, *domain.FraudAlert) error {
	return nil
}

func (n *countingNotifier) SendProviderError(*domain.WalletProvider, error) error {
	atomic.AddInt32(&n.providerErrors, 1)
	return nil
}

func (n *countingNotifier) SendError(error) error { return nil }
func (n *countingNotifier) SendInfo(string) error { return nil }
