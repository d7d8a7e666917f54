// Package ledger는 결제/출금 기록으로부터 고객사 잔고와 수수료를 계산합니다.
// 이 패키지는 부수 효과가 없으며 저장소를 읽기만 합니다.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/config"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

// Source는 잔고 계산에 필요한 조회 연산입니다.
// storage.Store와 storage.Tx 모두 이 인터페이스를 만족합니다.
type Source interface {
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	SumCompletedPayments(ctx context.Context, clientID int64) (decimal.Decimal, error)
	SumWithdrawals(ctx context.Context, filter storage.WithdrawalFilter) (decimal.Decimal, error)
}

// Ledger는 잔고 계산기입니다
type Ledger struct {
	src     Source
	catalog *config.Catalog
	logger  *zap.Logger
}

// New는 새로운 Ledger를 생성합니다
func New(src Source, catalog *config.Catalog, log *zap.Logger) *Ledger {
	return &Ledger{src: src, catalog: catalog, logger: logger.OrNop(log)}
}

// WithSource는 다른 조회 소스(주로 트랜잭션)에 묶인 복사본을 반환합니다
func (l *Ledger) WithSource(src Source) *Ledger {
	c := *l
	c.src = src
	return &c
}

// CalculateBalance는 고객사의 가용 잔고를 계산합니다.
// 완료된 결제 합계에서 예약/완료된 출금과 수수료를 뺀 값입니다.
func (l *Ledger) CalculateBalance(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	payments, err := l.src.SumCompletedPayments(ctx, clientID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("결제 합계 계산 실패: %w", err)
	}

	reserved, err := l.src.SumWithdrawals(ctx, storage.WithdrawalFilter{
		ClientID: clientID,
		Statuses: domain.ReservedStatuses,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("출금 합계 계산 실패: %w", err)
	}

	commission, err := l.commission(ctx, clientID, payments)
	if err != nil {
		return decimal.Zero, err
	}

	return payments.Sub(reserved).Sub(commission.Total), nil
}

// CalculateCommission은 고객사의 입금/출금 수수료를 계산합니다
func (l *Ledger) CalculateCommission(ctx context.Context, clientID int64) (domain.Commission, error) {
	payments, err := l.src.SumCompletedPayments(ctx, clientID)
	if err != nil {
		return domain.Commission{}, fmt.Errorf("결제 합계 계산 실패: %w", err)
	}
	return l.commission(ctx, clientID, payments)
}

func (l *Ledger) commission(ctx context.Context, clientID int64, payments decimal.Decimal) (domain.Commission, error) {
	client, err := l.src.GetClient(ctx, clientID)
	if err != nil {
		return domain.Commission{}, fmt.Errorf("고객사 조회 실패: %w", err)
	}

	userWithdrawals, err := l.src.SumWithdrawals(ctx, storage.WithdrawalFilter{
		ClientID: clientID,
		Statuses: domain.CommissionStatuses,
		Types:    []domain.WithdrawalType{domain.TypeUserRequest},
	})
	if err != nil {
		return domain.Commission{}, fmt.Errorf("사용자 출금 합계 계산 실패: %w", err)
	}

	deposit := payments.Mul(client.DepositCommissionRate)
	withdrawal := userWithdrawals.Mul(client.WithdrawalCommissionRate)

	return domain.Commission{
		Deposit:    deposit,
		Withdrawal: withdrawal,
		Total:      deposit.Add(withdrawal),
	}, nil
}

// Fee는 통화와 금액에 대한 출금 수수료를 계산합니다
func (l *Ledger) Fee(currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	spec, ok := l.catalog.Currency(currency)
	if !ok {
		return decimal.Zero, domain.NewValidationError("currency", "지원하지 않는 통화입니다: %s", currency)
	}
	return spec.FeeFor(amount), nil
}

// CheckWithdrawal은 금액 + 수수료가 가용 잔고 이내인지 확인하고 수수료를 반환합니다.
// 잔고가 부족하면 InsufficientBalanceError를 반환합니다.
func (l *Ledger) CheckWithdrawal(ctx context.Context, clientID int64, currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	fee, err := l.Fee(currency, amount)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := l.CalculateBalance(ctx, clientID)
	if err != nil {
		return decimal.Zero, err
	}

	required := amount.Add(fee)
	if required.GreaterThan(balance) {
		return decimal.Zero, &domain.InsufficientBalanceError{
			ClientID:  clientID,
			Requested: required,
			Available: balance,
		}
	}
	return fee, nil
}

// ValidateWithdrawalAmount는 출금 가능 여부를 반환합니다.
// 계산 중 에러가 발생하면 false를 반환합니다.
func (l *Ledger) ValidateWithdrawalAmount(ctx context.Context, clientID int64, currency string, amount decimal.Decimal) bool {
	_, err := l.CheckWithdrawal(ctx, clientID, currency, amount)
	if err == nil {
		return true
	}

	var insufficient *domain.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		l.logger.Warn("출금 가능 여부 확인 실패",
			zap.Int64("client_id", clientID),
			zap.String("currency", currency),
			zap.Error(err),
		)
	}
	return false
}
