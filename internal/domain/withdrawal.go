package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalRequest는 출금 요청 집계 루트입니다
type WithdrawalRequest struct {
	ID              int64            `json:"id"`
	ClientID        int64            `json:"client_id"`
	UserID          string           `json:"user_id,omitempty"` // USER_REQUEST 유형에서만 사용
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	Network         string           `json:"network,omitempty"`
	Address         string           `json:"address"`
	Fee             decimal.Decimal  `json:"fee"`
	NetAmount       *decimal.Decimal `json:"net_amount,omitempty"` // 수수료 확정 전에는 nil
	Type            WithdrawalType   `json:"withdrawal_type"`
	Status          WithdrawalStatus `json:"status"`
	ApprovedBy      string           `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	RejectedBy      string           `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time       `json:"rejected_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SetFee는 수수료와 실수령액을 함께 설정합니다
func (r *WithdrawalRequest) SetFee(fee decimal.Decimal) {
	net := r.Amount.Sub(fee)
	r.Fee = fee
	r.NetAmount = &net
}

// Clone은 요청의 깊은 복사본을 반환합니다
func (r *WithdrawalRequest) Clone() *WithdrawalRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.NetAmount != nil {
		v := *r.NetAmount
		c.NetAmount = &v
	}
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

// Withdrawal은 승인된 요청의 실행 기록입니다 (요청과 1:1)
type Withdrawal struct {
	ID            int64            `json:"id"`
	RequestID     int64            `json:"request_id"`
	ClientID      int64            `json:"client_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Address       string           `json:"address"`
	Status        WithdrawalStatus `json:"status"`
	TxReference   string           `json:"tx_reference,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Clone은 실행 기록의 복사본을 반환합니다
func (w *Withdrawal) Clone() *Withdrawal {
	if w == nil {
		return nil
	}
	c := *w
	c.CompletedAt = cloneTime(w.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
