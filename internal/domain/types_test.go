package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWithdrawalStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from WithdrawalStatus
		to   WithdrawalStatus
		want bool
	}{
		{"대기 -> 승인", StatusPending, StatusApproved, true},
		{"대기 -> 거절", StatusPending, StatusRejected, true},
		{"대기 -> 취소", StatusPending, StatusCancelled, true},
		{"대기 -> 처리중 불가", StatusPending, StatusProcessing, false},
		{"승인 -> 처리중", StatusApproved, StatusProcessing, true},
		{"승인 -> 취소 불가", StatusApproved, StatusCancelled, false},
		{"처리중 -> 완료", StatusProcessing, StatusCompleted, true},
		{"처리중 -> 실패", StatusProcessing, StatusFailed, true},
		{"완료 -> 실패 불가", StatusCompleted, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWithdrawalStatus_TerminalStatesAreClosed(t *testing.T) {
	terminal := []WithdrawalStatus{StatusRejected, StatusCompleted, StatusFailed, StatusCancelled}
	for _, from := range terminal {
		assert.True(t, from.IsTerminal(), from)
		for _, to := range AllStatuses() {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestWithdrawalRequest_SetFee(t *testing.T) {
	req := &WithdrawalRequest{Amount: decimal.RequireFromString("1.5")}
	req.SetFee(decimal.RequireFromString("0.0005"))

	if assert.NotNil(t, req.NetAmount) {
		assert.True(t, req.NetAmount.Equal(decimal.RequireFromString("1.4995")))
	}
}

func TestProviderError_Is(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := NewProviderError("kraken", "GetBalances", ErrProviderTimeout, cause)

	assert.True(t, errors.Is(err, ErrProviderTimeout))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrProviderAuth))
	assert.True(t, IsProviderError(err))
}

func TestNewTransitionError_Conflict(t *testing.T) {
	tests := []struct {
		name         string
		from         WithdrawalStatus
		to           WithdrawalStatus
		wantConflict bool
	}{
		{"이미 취소된 요청 승인", StatusCancelled, StatusApproved, true},
		{"이미 승인된 요청 재승인", StatusApproved, StatusApproved, true},
		{"대기 중 요청 완료 처리", StatusPending, StatusCompleted, false},
		{"처리중 요청 다시 처리 시작", StatusProcessing, StatusProcessing, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTransitionError(1, tt.from, tt.to)
			assert.Equal(t, tt.wantConflict, err.Conflict)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
}

func TestRiskLevel_UnmarshalText(t *testing.T) {
	var level RiskLevel
	assert.NoError(t, level.UnmarshalText([]byte("HIGH")))
	assert.Equal(t, RiskHigh, level)

	err := level.UnmarshalText([]byte("SEVERE"))
	assert.True(t, errors.Is(err, ErrValidation))
}
