package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client는 결제 게이트웨이를 사용하는 가맹점입니다.
// 잔고는 저장하지 않고 결제/출금 기록으로부터 계산합니다.
type Client struct {
	ID                       int64           `json:"id"`
	Name                     string          `json:"name"`
	DepositCommissionRate    decimal.Decimal `json:"deposit_commission_rate"`
	WithdrawalCommissionRate decimal.Decimal `json:"withdrawal_commission_rate"`
	CreatedAt                time.Time       `json:"created_at"`
}

// Payment는 고객사로 들어온 결제입니다
type Payment struct {
	ID        int64           `json:"id"`
	ClientID  int64           `json:"client_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Commission은 고객사에 부과되는 수수료 내역입니다
type Commission struct {
	Deposit    decimal.Decimal `json:"deposit"`
	Withdrawal decimal.Decimal `json:"withdrawal"`
	Total      decimal.Decimal `json:"total"`
}
