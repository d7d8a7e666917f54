package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

type stubAdapter struct{ passive bool }

func (stubAdapter) TestConnection(context.Context) (domain.ConnectionResult, error) {
	return domain.ConnectionResult{OK: true}, nil
}

func (stubAdapter) GetBalances(context.Context) (map[string]domain.Balance, error) {
	return map[string]domain.Balance{}, nil
}

func (s stubAdapter) Passive() bool { return s.passive }

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.ProviderKraken, func(p *domain.WalletProvider, opts Options) (Adapter, error) {
		return stubAdapter{}, nil
	})
	r.Register(domain.ProviderBinance, func(p *domain.WalletProvider, opts Options) (Adapter, error) {
		return stubAdapter{}, nil
	})

	a, err := r.Create(&domain.WalletProvider{Name: "k", Type: domain.ProviderKraken}, Options{})
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, err = r.Create(&domain.WalletProvider{Name: "x", Type: "ftx"}, Options{})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedAdapter))

	assert.Equal(t, []domain.ProviderType{domain.ProviderBinance, domain.ProviderKraken}, r.Types())
}

func TestIsPassive(t *testing.T) {
	assert.True(t, IsPassive(stubAdapter{passive: true}))
	assert.False(t, IsPassive(stubAdapter{passive: false}))
}
