package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance는 공급자가 보고한 통화별 잔고입니다
type Balance struct {
	Asset     string          `json:"asset"`     // 정규화된 통화 코드 (예: BTC, USDT)
	Available decimal.Decimal `json:"available"` // 사용 가능한 잔고
	Locked    decimal.Decimal `json:"locked"`    // 주문 등에 묶인 잔고
}

// Total은 사용 가능 잔고와 잠긴 잔고의 합을 반환합니다
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// Credentials는 공급자 API 인증 정보입니다.
// 코어는 값의 존재 여부 외에는 해석하지 않습니다.
type Credentials struct {
	APIKey     string `json:"-"`
	APISecret  string `json:"-"`
	Passphrase string `json:"-"`
}

// ProviderCurrency는 공급자별 통화 지원 설정입니다
type ProviderCurrency struct {
	Code    string `json:"currency_code"`
	Enabled bool   `json:"is_enabled"`
}

// WalletProvider는 잔고를 조회할 수 있는 외부 지갑 공급자입니다
type WalletProvider struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	Type            ProviderType       `json:"provider_type"`
	Credentials     Credentials        `json:"-"`
	APIURL          string             `json:"api_url,omitempty"` // 기본 URL 대신 사용할 주소
	Sandbox         bool               `json:"sandbox_mode"`
	Priority        int                `json:"priority"` // 낮을수록 우선
	IsPrimary       bool               `json:"is_primary"`
	IsActive        bool               `json:"is_active"`
	Currencies      []ProviderCurrency `json:"currencies"`
	WalletAddresses map[string]string  `json:"wallet_addresses,omitempty"` // 수동 지갑: 통화 -> 주소
	HealthStatus    HealthStatus       `json:"health_status"`
	HealthDetail    string             `json:"health_detail,omitempty"`
	LastSyncAt      *time.Time         `json:"last_sync_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// SupportsCurrency는 해당 통화가 활성화되어 있는지 확인합니다
func (p *WalletProvider) SupportsCurrency(code string) bool {
	for _, c := range p.Currencies {
		if c.Code == code && c.Enabled {
			return true
		}
	}
	return false
}

// Clone은 공급자의 깊은 복사본을 반환합니다
func (p *WalletProvider) Clone() *WalletProvider {
	if p == nil {
		return nil
	}
	c := *p
	c.Currencies = append([]ProviderCurrency(nil), p.Currencies...)
	if p.WalletAddresses != nil {
		c.WalletAddresses = make(map[string]string, len(p.WalletAddresses))
		for k, v := range p.WalletAddresses {
			c.WalletAddresses[k] = v
		}
	}
	c.LastSyncAt = cloneTime(p.LastSyncAt)
	return &c
}

// WalletBalance는 (공급자, 통화) 단위로 저장되는 잔고 스냅샷입니다
type WalletBalance struct {
	ProviderID   int64           `json:"provider_id"`
	Currency     string          `json:"currency_code"`
	Available    decimal.Decimal `json:"available"`
	Locked       decimal.Decimal `json:"locked"`
	Total        decimal.Decimal `json:"total"`
	LastUpdated  time.Time       `json:"last_updated"`
	UpdateSource UpdateSource    `json:"update_source"`
}

// ConnectionResult는 공급자 연결 테스트 결과입니다
type ConnectionResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}
