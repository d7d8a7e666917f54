package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsmhmt/paycrypt-sub000/internal/config"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newClient(s *memory.Store, depositRate, withdrawalRate string) int64 {
	return s.AddClient(&domain.Client{
		Name:                     "acme",
		DepositCommissionRate:    d(depositRate),
		WithdrawalCommissionRate: d(withdrawalRate),
	})
}

func addPayment(s *memory.Store, clientID int64, amount string, status domain.PaymentStatus) {
	s.AddPayment(&domain.Payment{ClientID: clientID, Amount: d(amount), Currency: "USDT", Status: status})
}

func addWithdrawal(s *memory.Store, clientID int64, amount string, status domain.WithdrawalStatus, typ domain.WithdrawalType) {
	s.AddWithdrawalRequest(&domain.WithdrawalRequest{
		ClientID: clientID,
		Amount:   d(amount),
		Currency: "USDT",
		Status:   status,
		Type:     typ,
	})
}

func TestLedger_CalculateBalance(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	clientID := newClient(s, "0.035", "0.015")

	addPayment(s, clientID, "100", domain.PaymentCompleted)
	addPayment(s, clientID, "50", domain.PaymentCompleted)
	addPayment(s, clientID, "20", domain.PaymentPending)
	addWithdrawal(s, clientID, "30", domain.StatusApproved, domain.TypeClientBalance)

	l := New(s, config.DefaultCatalog(), nil)

	balance, err := l.CalculateBalance(ctx, clientID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("114.75")), balance.String())

	commission, err := l.CalculateCommission(ctx, clientID)
	require.NoError(t, err)
	assert.True(t, commission.Deposit.Equal(d("5.25")))
	assert.True(t, commission.Withdrawal.IsZero())
	assert.True(t, commission.Total.Equal(d("5.25")))
}

func TestLedger_PendingWithdrawalsAreReserved(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	clientID := newClient(s, "0", "0")
	addPayment(s, clientID, "100", domain.PaymentCompleted)

	tests := []struct {
		name   string
		status domain.WithdrawalStatus
		want   string
	}{
		{"대기", domain.StatusPending, "90"},
		{"처리중", domain.StatusProcessing, "80"},
		{"거절은 제외", domain.StatusRejected, "80"},
		{"취소는 제외", domain.StatusCancelled, "80"},
		{"실패는 제외", domain.StatusFailed, "80"},
		{"완료", domain.StatusCompleted, "70"},
	}

	l := New(s, config.DefaultCatalog(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addWithdrawal(s, clientID, "10", tt.status, domain.TypeClientBalance)
			balance, err := l.CalculateBalance(ctx, clientID)
			require.NoError(t, err)
			assert.True(t, balance.Equal(d(tt.want)), "got %s want %s", balance, tt.want)
		})
	}
}

func TestLedger_WithdrawalCommissionOnlyUserRequests(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	clientID := newClient(s, "0", "0.02")
	addPayment(s, clientID, "1000", domain.PaymentCompleted)

	addWithdrawal(s, clientID, "100", domain.StatusCompleted, domain.TypeUserRequest)
	addWithdrawal(s, clientID, "50", domain.StatusApproved, domain.TypeUserRequest)
	addWithdrawal(s, clientID, "40", domain.StatusPending, domain.TypeUserRequest)
	addWithdrawal(s, clientID, "200", domain.StatusCompleted, domain.TypeClientBalance)

	l := New(s, config.DefaultCatalog(), nil)
	commission, err := l.CalculateCommission(ctx, clientID)
	require.NoError(t, err)
	assert.True(t, commission.Withdrawal.Equal(d("3")), commission.Withdrawal.String())

	balance, err := l.CalculateBalance(ctx, clientID)
	require.NoError(t, err)
	// 1000 - (100 + 50 + 40 + 200) - 3
	assert.True(t, balance.Equal(d("607")), balance.String())
}

func TestLedger_ValidateWithdrawalAmount(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	clientID := newClient(s, "0", "0")
	addPayment(s, clientID, "30", domain.PaymentCompleted)

	l := New(s, config.DefaultCatalog(), nil)

	// USDT 고정 수수료 1
	assert.True(t, l.ValidateWithdrawalAmount(ctx, clientID, "USDT", d("29")))
	assert.False(t, l.ValidateWithdrawalAmount(ctx, clientID, "USDT", d("29.5")))
	assert.False(t, l.ValidateWithdrawalAmount(ctx, clientID, "USDT", d("40")))
	assert.False(t, l.ValidateWithdrawalAmount(ctx, clientID, "NOPE", d("1")))

	_, err := l.CheckWithdrawal(ctx, clientID, "USDT", d("40"))
	var insufficient *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(d("30")))
	assert.True(t, insufficient.Requested.Equal(d("41")))
}

type failingSource struct{}

func (failingSource) GetClient(context.Context, int64) (*domain.Client, error) {
	return nil, errors.New("db down")
}

func (failingSource) SumCompletedPayments(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("db down")
}

func (failingSource) SumWithdrawals(context.Context, storage.WithdrawalFilter) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("db down")
}

func TestLedger_FailsClosed(t *testing.T) {
	l := New(failingSource{}, config.DefaultCatalog(), nil)
	assert.False(t, l.ValidateWithdrawalAmount(context.Background(), 1, "BTC", d("0.001")))

	_, err := l.CalculateBalance(context.Background(), 1)
	assert.Error(t, err)
}

func TestLedger_UnknownClient(t *testing.T) {
	l := New(memory.NewStore(), config.DefaultCatalog(), nil)
	_, err := l.CalculateBalance(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
