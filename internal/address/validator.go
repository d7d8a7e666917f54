// Package address는 통화/네트워크별 출금 주소 형식을 검증합니다.
package address

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

// 지원 네트워크
const (
	NetworkBitcoin  = "bitcoin"
	NetworkEthereum = "ethereum"
	NetworkTron     = "tron"
	NetworkLitecoin = "litecoin"
	NetworkRipple   = "ripple"
)

var rippleAddress = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

// litecoinParams는 비트코인 메인넷 파라미터에서 주소 접두사만 바꾼 값입니다
var litecoinParams = func() chaincfg.Params {
	p := chaincfg.MainNetParams
	p.Name = "litecoin"
	p.PubKeyHashAddrID = 0x30
	p.ScriptHashAddrID = 0x32
	p.Bech32HRPSegwit = "ltc"
	return p
}()

// Validator는 주소 검증기입니다
type Validator struct {
	networks map[string][]string // 통화 -> 허용 네트워크 (첫 번째가 기본값)
	btc      *chaincfg.Params
	ltc      *chaincfg.Params
}

// Option은 검증기 옵션입니다
type Option func(*Validator)

// WithTestnet은 비트코인 계열 주소를 테스트넷 기준으로 검증합니다
func WithTestnet(testnet bool) Option {
	return func(v *Validator) {
		if testnet {
			v.btc = &chaincfg.TestNet3Params
		}
	}
}

// NewValidator는 통화별 네트워크 목록으로 검증기를 생성합니다
func NewValidator(networks map[string][]string, opts ...Option) *Validator {
	v := &Validator{
		networks: make(map[string][]string, len(networks)),
		btc:      &chaincfg.MainNetParams,
		ltc:      &litecoinParams,
	}
	for code, list := range networks {
		v.networks[strings.ToUpper(code)] = list
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate는 주소를 검증하고 실제로 일치한 네트워크를 반환합니다.
// network가 비어 있으면 통화에 허용된 네트워크를 순서대로 시도합니다.
func (v *Validator) Validate(currency, network, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", domain.NewValidationError("address", "주소가 비어 있습니다")
	}

	allowed := v.networks[strings.ToUpper(currency)]
	if network != "" {
		if len(allowed) > 0 && !contains(allowed, network) {
			return "", domain.NewValidationError("network", "%s는 %s 네트워크를 지원하지 않습니다", currency, network)
		}
		if err := v.check(network, addr); err != nil {
			return "", err
		}
		return network, nil
	}

	if len(allowed) == 0 {
		if err := checkGeneric(addr); err != nil {
			return "", err
		}
		return "", nil
	}

	var lastErr error
	for _, n := range allowed {
		if lastErr = v.check(n, addr); lastErr == nil {
			return n, nil
		}
	}
	if len(allowed) == 1 {
		return "", lastErr
	}
	return "", domain.NewValidationError("address", "%s 주소 형식이 올바르지 않습니다 (허용 네트워크: %s)",
		currency, strings.Join(allowed, ", "))
}

// check는 단일 네트워크 기준으로 주소를 검증합니다
func (v *Validator) check(network, addr string) error {
	switch network {
	case NetworkBitcoin:
		return decodeUTXO(v.btc, "비트코인", addr)

	case NetworkLitecoin:
		return decodeUTXO(v.ltc, "라이트코인", addr)

	case NetworkEthereum:
		if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
			return domain.NewValidationError("address", "이더리움 주소 형식이 올바르지 않습니다: %s", addr)
		}
		return nil

	case NetworkTron:
		if _, err := address.Base58ToAddress(addr); err != nil {
			return domain.NewValidationError("address", "트론 주소 형식이 올바르지 않습니다: %v", err)
		}
		return nil

	case NetworkRipple:
		if !rippleAddress.MatchString(addr) {
			return domain.NewValidationError("address", "리플 주소 형식이 올바르지 않습니다: %s", addr)
		}
		return nil

	default:
		return checkGeneric(addr)
	}
}

func decodeUTXO(params *chaincfg.Params, name, addr string) error {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return domain.NewValidationError("address", "%s 주소 형식이 올바르지 않습니다: %v", name, err)
	}
	if !decoded.IsForNet(params) {
		return domain.NewValidationError("address", "%s 주소의 네트워크가 일치하지 않습니다", name)
	}
	return nil
}

func checkGeneric(addr string) error {
	if len(addr) < 10 || len(addr) > 128 || strings.ContainsAny(addr, " \t\r\n") {
		return domain.NewValidationError("address", "주소 길이 또는 형식이 올바르지 않습니다: %q", addr)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
