package manual

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsmhmt/paycrypt-sub000/internal/address"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage/memory"
)

func newValidator() *address.Validator {
	return address.NewValidator(map[string][]string{
		"BTC": {address.NetworkBitcoin},
		"ETH": {address.NetworkEthereum},
	})
}

func TestWallet_GetBalancesReturnsSnapshot(t *testing.T) {
	store := memory.NewStore()
	p := &domain.WalletProvider{Name: "cold", Type: domain.ProviderManualWallet, IsActive: true}
	store.AddProvider(p)
	store.PutBalance(&domain.WalletBalance{
		ProviderID:   p.ID,
		Currency:     "BTC",
		Available:    decimal.RequireFromString("3.5"),
		Total:        decimal.RequireFromString("3.5"),
		LastUpdated:  time.Now(),
		UpdateSource: domain.SourceManual,
	})

	a, err := New(p, exchange.Options{Snapshots: store})
	require.NoError(t, err)
	assert.True(t, exchange.IsPassive(a))

	balances, err := a.GetBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances["BTC"].Available.Equal(decimal.RequireFromString("3.5")))
}

func TestWallet_TestConnection(t *testing.T) {
	tests := []struct {
		name      string
		addresses map[string]string
		wantOK    bool
	}{
		{"유효한 주소", map[string]string{"BTC": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}, true},
		{"일부만 유효", map[string]string{
			"BTC": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			"ETH": "not-an-address",
		}, true},
		{"모두 잘못된 주소", map[string]string{"ETH": "0x123"}, false},
		{"주소 없음", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.WalletProvider{Name: "cold", Type: domain.ProviderManualWallet, WalletAddresses: tt.addresses}
			a, err := New(p, exchange.Options{Snapshots: memory.NewStore(), Addresses: newValidator()})
			require.NoError(t, err)

			result, err := a.TestConnection(context.Background())
			assert.Equal(t, tt.wantOK, result.OK, result.Detail)
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrProviderConfig))
		})
	}
}

func TestNew_RequiresSnapshots(t *testing.T) {
	_, err := New(&domain.WalletProvider{Name: "cold"}, exchange.Options{})
	assert.True(t, errors.Is(err, domain.ErrProviderConfig))
}
