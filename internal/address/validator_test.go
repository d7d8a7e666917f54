package address

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

func newTestValidator() *Validator {
	return NewValidator(map[string][]string{
		"BTC":  {NetworkBitcoin},
		"ETH":  {NetworkEthereum},
		"USDT": {NetworkEthereum, NetworkTron},
		"XRP":  {NetworkRipple},
	})
}

func TestValidator_Validate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name        string
		currency    string
		network     string
		addr        string
		wantNetwork string
		wantErr     bool
	}{
		{"비트코인 레거시", "BTC", "", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", NetworkBitcoin, false},
		{"비트코인 bech32", "BTC", "", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", NetworkBitcoin, false},
		{"비트코인 체크섬 오류", "BTC", "", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb", "", true},
		{"이더리움", "ETH", "", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", NetworkEthereum, false},
		{"이더리움 접두사 없음", "ETH", "", "742d35Cc6634C0532925a3b844Bc454e4438f44e", "", true},
		{"USDT 트론 자동 판별", "USDT", "", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", NetworkTron, false},
		{"USDT 이더리움 자동 판별", "USDT", "", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", NetworkEthereum, false},
		{"USDT 비트코인 주소 거부", "USDT", "", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", "", true},
		{"USDT 허용되지 않은 네트워크", "USDT", NetworkBitcoin, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", "", true},
		{"리플", "XRP", "", "rEb8TK3gBgk5auZkwc6sHnwrGVJH8DuaLh", NetworkRipple, false},
		{"빈 주소", "BTC", "", "  ", "", true},
		{"미등록 통화 일반 검사", "DOGE", "", "DH5yaieqoZN36fDVciNyRueRGvGLR3mr7L", "", false},
		{"미등록 통화 짧은 주소", "DOGE", "", "abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, err := v.Validate(tt.currency, tt.network, tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrValidation))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantNetwork, network)
		})
	}
}

func TestValidator_Testnet(t *testing.T) {
	v := NewValidator(map[string][]string{"BTC": {NetworkBitcoin}}, WithTestnet(true))

	_, err := v.Validate("BTC", "", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	assert.Error(t, err)
}
