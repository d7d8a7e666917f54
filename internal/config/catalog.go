package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FeeType은 출금 수수료 계산 방식입니다
type FeeType string

const (
	FeeFixed      FeeType = "fixed"
	FeePercentage FeeType = "percentage"
)

// CurrencySpec은 통화별 출금 정책입니다
type CurrencySpec struct {
	Fee           decimal.Decimal `yaml:"fee"`
	FeeType       FeeType         `yaml:"fee_type"`
	MinWithdrawal decimal.Decimal `yaml:"min_withdrawal"`
	Networks      []string        `yaml:"networks"` // 첫 번째가 기본 네트워크
}

// Catalog는 통화 정책과 차단 주소 목록을 담은 파일 설정입니다
type Catalog struct {
	Currencies           map[string]CurrencySpec `yaml:"currencies"`
	BlacklistedAddresses []string                `yaml:"blacklisted_addresses"`
}

// DefaultCatalog는 파일이 없을 때 사용하는 기본 통화 정책을 반환합니다
func DefaultCatalog() *Catalog {
	return &Catalog{
		Currencies: map[string]CurrencySpec{
			"BTC": {
				Fee:           decimal.RequireFromString("0.0005"),
				FeeType:       FeeFixed,
				MinWithdrawal: decimal.RequireFromString("0.0001"),
				Networks:      []string{"bitcoin"},
			},
			"ETH": {
				Fee:           decimal.RequireFromString("0.005"),
				FeeType:       FeeFixed,
				MinWithdrawal: decimal.RequireFromString("0.01"),
				Networks:      []string{"ethereum"},
			},
			"USDT": {
				Fee:           decimal.RequireFromString("1"),
				FeeType:       FeeFixed,
				MinWithdrawal: decimal.RequireFromString("10"),
				Networks:      []string{"ethereum", "tron"},
			},
			"TRX": {
				Fee:           decimal.RequireFromString("1"),
				FeeType:       FeeFixed,
				MinWithdrawal: decimal.RequireFromString("10"),
				Networks:      []string{"tron"},
			},
			"LTC": {
				Fee:           decimal.RequireFromString("0.001"),
				FeeType:       FeeFixed,
				MinWithdrawal: decimal.RequireFromString("0.01"),
				Networks:      []string{"litecoin"},
			},
			"XRP": {
				Fee:           decimal.RequireFromString("0.0025"),
				FeeType:       FeePercentage,
				MinWithdrawal: decimal.RequireFromString("20"),
				Networks:      []string{"ripple"},
			},
		},
	}
}

// LoadCatalog는 YAML 파일에서 통화 정책을 로드합니다.
// 파일이 없으면 기본값을 반환합니다.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultCatalog(), nil
		}
		return nil, fmt.Errorf("카탈로그 파일 읽기 실패: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog는 YAML 데이터를 파싱하고 검증합니다
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("카탈로그 파싱 실패: %w", err)
	}

	normalized := make(map[string]CurrencySpec, len(cat.Currencies))
	for code, spec := range cat.Currencies {
		if spec.FeeType == "" {
			spec.FeeType = FeeFixed
		}
		if spec.FeeType != FeeFixed && spec.FeeType != FeePercentage {
			return nil, fmt.Errorf("%s: 알 수 없는 수수료 방식 %q", code, spec.FeeType)
		}
		if spec.Fee.IsNegative() || spec.MinWithdrawal.IsNegative() {
			return nil, fmt.Errorf("%s: 수수료와 최소 출금액은 음수일 수 없습니다", code)
		}
		if spec.FeeType == FeePercentage && spec.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("%s: 비율 수수료는 1 미만이어야 합니다", code)
		}
		normalized[strings.ToUpper(code)] = spec
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("카탈로그에 통화가 없습니다")
	}
	cat.Currencies = normalized

	return &cat, nil
}

// Currency는 통화 정책을 조회합니다
func (c *Catalog) Currency(code string) (CurrencySpec, bool) {
	spec, ok := c.Currencies[strings.ToUpper(code)]
	return spec, ok
}

// FeeFor는 통화와 금액에 대한 출금 수수료를 계산합니다
func (s CurrencySpec) FeeFor(amount decimal.Decimal) decimal.Decimal {
	if s.FeeType == FeePercentage {
		return amount.Mul(s.Fee)
	}
	return s.Fee
}

// Networks는 통화별 허용 네트워크 목록을 반환합니다
func (c *Catalog) Networks() map[string][]string {
	out := make(map[string][]string, len(c.Currencies))
	for code, spec := range c.Currencies {
		out[code] = append([]string(nil), spec.Networks...)
	}
	return out
}
