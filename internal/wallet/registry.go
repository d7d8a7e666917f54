// Package wallet은 지갑 공급자 선택과 잔고 동기화를 담당합니다.
package wallet

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/audit"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/binance"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/coinbase"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/kraken"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/manual"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

// DefaultAdapters는 지원하는 모든 공급자 유형이 등록된 어댑터 레지스트리를 반환합니다
func DefaultAdapters() *exchange.Registry {
	r := exchange.NewRegistry()
	r.Register(domain.ProviderBinance, binance.New)
	r.Register(domain.ProviderCoinbase, coinbase.New)
	r.Register(domain.ProviderKraken, kraken.New)
	r.Register(domain.ProviderManualWallet, manual.New)
	return r
}

// Registry는 등록된 지갑 공급자를 조회하고 선택합니다
type Registry struct {
	store    storage.Store
	adapters *exchange.Registry
	opts     exchange.Options
	audit    audit.Publisher
	logger   *zap.Logger
}

// RegistryOption은 Registry 옵션입니다
type RegistryOption func(*Registry)

// WithRegistryAudit은 기본 공급자 변경 이벤트 발행기를 지정합니다
func WithRegistryAudit(p audit.Publisher) RegistryOption {
	return func(r *Registry) { r.audit = p }
}

// NewRegistry는 새로운 공급자 레지스트리를 생성합니다.
// opts.Snapshots가 비어 있으면 store를 사용합니다.
func NewRegistry(store storage.Store, adapters *exchange.Registry, opts exchange.Options, log *zap.Logger, options ...RegistryOption) *Registry {
	if adapters == nil {
		adapters = DefaultAdapters()
	}
	if opts.Snapshots == nil {
		opts.Snapshots = store
	}
	opts.Logger = logger.OrNop(opts.Logger)

	r := &Registry{
		store:    store,
		adapters: adapters,
		opts:     opts,
		logger:   logger.OrNop(log),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.audit == nil {
		r.audit = audit.NewLogPublisher(r.logger)
	}
	return r
}

// GetProvider는 ID로 공급자를 조회합니다
func (r *Registry) GetProvider(ctx context.Context, id int64) (*domain.WalletProvider, error) {
	return r.store.GetProvider(ctx, id)
}

// ListProviders는 공급자 목록을 조회합니다
func (r *Registry) ListProviders(ctx context.Context, activeOnly bool) ([]*domain.WalletProvider, error) {
	return r.store.ListProviders(ctx, activeOnly)
}

// GetPrimaryProvider는 활성 상태인 기본 공급자를 반환합니다
func (r *Registry) GetPrimaryProvider(ctx context.Context) (*domain.WalletProvider, error) {
	providers, err := r.store.ListProviders(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, p := range providers {
		if p.IsPrimary {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

// GetProviderForCurrency는 통화를 지원하는 활성 공급자 중 우선순위가 가장 높은 것을 반환합니다.
// 우선순위 값이 같으면 ID가 작은 공급자를 선택합니다.
func (r *Registry) GetProviderForCurrency(ctx context.Context, currency string) (*domain.WalletProvider, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return nil, domain.NewValidationError("currency", "통화 코드가 필요합니다")
	}

	providers, err := r.store.ListProviders(ctx, true)
	if err != nil {
		return nil, err
	}

	var candidates []*domain.WalletProvider
	for _, p := range providers {
		if p.SupportsCurrency(code) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNotFound
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], nil
}

// SetPrimary는 대상 공급자를 기본으로 지정하고 나머지의 기본 표시를 해제합니다
func (r *Registry) SetPrimary(ctx context.Context, providerID int64, actorID string) (*domain.WalletProvider, error) {
	var updated *domain.WalletProvider
	err := r.store.InTx(ctx, func(tx storage.Tx) error {
		p, err := tx.LockProvider(ctx, providerID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return domain.NewValidationError("provider_id", "비활성 공급자는 기본으로 지정할 수 없습니다: %s", p.Name)
		}
		if err := tx.SetPrimaryProvider(ctx, providerID); err != nil {
			return err
		}
		p.IsPrimary = true
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("기본 공급자 변경",
		zap.Int64("provider_id", updated.ID),
		zap.String("provider", updated.Name),
		zap.String("actor_id", actorID),
	)
	event := audit.NewEvent(audit.ActionSetPrimary, actorID, nil, nil).
		WithMetadata("provider_id", strconv.FormatInt(updated.ID, 10)).
		WithMetadata("provider", updated.Name)
	if err := r.audit.Publish(ctx, event); err != nil {
		r.logger.Error("감사 이벤트 발행 실패", zap.Error(err))
	}
	return updated, nil
}

// AdapterFor는 공급자 유형에 맞는 어댑터를 생성합니다
func (r *Registry) AdapterFor(p *domain.WalletProvider) (exchange.Adapter, error) {
	return r.adapters.Create(p, r.opts)
}
