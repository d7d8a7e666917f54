// Package manual은 운영자가 직접 잔고를 입력하는 수동 지갑 어댑터입니다.
// 외부 네트워크 호출을 하지 않습니다.
package manual

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
)

// Wallet은 저장된 잔고 스냅샷을 그대로 돌려주는 어댑터입니다
type Wallet struct {
	provider  *domain.WalletProvider
	snapshots exchange.SnapshotReader
	addresses exchange.AddressValidator
}

var (
	_ exchange.Adapter = (*Wallet)(nil)
	_ exchange.Passive = (*Wallet)(nil)
)

// New는 공급자 설정으로 어댑터를 생성합니다
func New(p *domain.WalletProvider, opts exchange.Options) (exchange.Adapter, error) {
	if opts.Snapshots == nil {
		return nil, domain.NewProviderError(p.Name, "create", domain.ErrProviderConfig,
			errors.New("잔고 스냅샷 저장소가 필요합니다"))
	}
	return &Wallet{provider: p.Clone(), snapshots: opts.Snapshots, addresses: opts.Addresses}, nil
}

// Passive는 항상 true를 반환합니다
func (w *Wallet) Passive() bool { return true }

// GetBalances는 마지막으로 입력된 잔고를 반환합니다
func (w *Wallet) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	stored, err := w.snapshots.ListBalances(ctx, w.provider.ID)
	if err != nil {
		return nil, fmt.Errorf("저장된 잔고 조회 실패: %w", err)
	}

	balances := make(map[string]domain.Balance, len(stored))
	for _, b := range stored {
		balances[b.Currency] = domain.Balance{
			Asset:     b.Currency,
			Available: b.Available,
			Locked:    b.Locked,
		}
	}
	return balances, nil
}

// TestConnection은 등록된 지갑 주소를 검증합니다. 유효한 주소가 하나 이상 있어야 합니다.
func (w *Wallet) TestConnection(_ context.Context) (domain.ConnectionResult, error) {
	if len(w.provider.WalletAddresses) == 0 {
		err := domain.NewProviderError(w.provider.Name, "TestConnection", domain.ErrProviderConfig,
			errors.New("등록된 지갑 주소가 없습니다"))
		return domain.ConnectionResult{Detail: err.Error()}, err
	}

	currencies := make([]string, 0, len(w.provider.WalletAddresses))
	for currency := range w.provider.WalletAddresses {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	var valid, invalid []string
	for _, currency := range currencies {
		addr := w.provider.WalletAddresses[currency]
		if w.addresses != nil {
			if _, err := w.addresses.Validate(currency, "", addr); err != nil {
				invalid = append(invalid, currency)
				continue
			}
		} else if strings.TrimSpace(addr) == "" {
			invalid = append(invalid, currency)
			continue
		}
		valid = append(valid, currency)
	}

	if len(valid) == 0 {
		err := domain.NewProviderError(w.provider.Name, "TestConnection", domain.ErrProviderConfig,
			fmt.Errorf("유효한 지갑 주소가 없습니다 (%s)", strings.Join(invalid, ", ")))
		return domain.ConnectionResult{Detail: err.Error()}, err
	}

	detail := fmt.Sprintf("유효한 주소: %s", strings.Join(valid, ", "))
	if len(invalid) > 0 {
		detail += fmt.Sprintf(" / 잘못된 주소: %s", strings.Join(invalid, ", "))
	}
	return domain.ConnectionResult{OK: true, Detail: detail}, nil
}
