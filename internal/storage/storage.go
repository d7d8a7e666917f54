// Package storage는 원장 데이터 저장소 인터페이스를 정의합니다.
// 모든 상태 변경은 InTx 안에서 행 잠금 후 수행됩니다.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

// WithdrawalFilter는 출금 요청 조회 조건입니다. 비어 있는 필드는 무시합니다.
type WithdrawalFilter struct {
	ClientID int64
	UserID   string
	Address  string
	Statuses []domain.WithdrawalStatus
	Types    []domain.WithdrawalType
	Since    time.Time
	Limit    int
}

// Matches는 요청이 필터 조건을 만족하는지 확인합니다
func (f WithdrawalFilter) Matches(r *domain.WithdrawalRequest) bool {
	if f.ClientID != 0 && r.ClientID != f.ClientID {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Address != "" && r.Address != f.Address {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, r.Type) {
		return false
	}
	return true
}

// Reader는 읽기 전용 조회 연산을 정의합니다
type Reader interface {
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	SumCompletedPayments(ctx context.Context, clientID int64) (decimal.Decimal, error)
	SumWithdrawals(ctx context.Context, filter WithdrawalFilter) (decimal.Decimal, error)

	GetWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, filter WithdrawalFilter) ([]*domain.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)

	GetProvider(ctx context.Context, id int64) (*domain.WalletProvider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]*domain.WalletProvider, error)
	ListBalances(ctx context.Context, providerID int64) ([]*domain.WalletBalance, error)
}

// Tx는 하나의 트랜잭션 안에서 수행되는 연산을 정의합니다.
// Lock 계열 메서드는 커밋/롤백까지 해당 행을 잠급니다.
type Tx interface {
	Reader

	LockClient(ctx context.Context, id int64) (*domain.Client, error)

	LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error)
	CreateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error
	UpdateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error

	LockWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	CreateWithdrawal(ctx context.Context, w *domain.Withdrawal) error
	UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error

	LockProvider(ctx context.Context, id int64) (*domain.WalletProvider, error)
	SetPrimaryProvider(ctx context.Context, id int64) error
	UpdateProviderHealth(ctx context.Context, id int64, status domain.HealthStatus, detail string, syncedAt *time.Time) error
	UpsertBalance(ctx context.Context, b *domain.WalletBalance) error
}

// Store는 트랜잭션을 시작할 수 있는 저장소입니다
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

func containsStatus(list []domain.WithdrawalStatus, s domain.WithdrawalStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(list []domain.WithdrawalType, t domain.WithdrawalType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
