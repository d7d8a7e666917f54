// Package exchange는 지갑 공급자 어댑터 인터페이스와 유형별 생성 레지스트리를 정의합니다.
package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

// Adapter는 지갑 공급자와의 상호작용을 위한 인터페이스입니다
type Adapter interface {
	// TestConnection은 자격 증명과 연결 상태를 확인합니다
	TestConnection(ctx context.Context) (domain.ConnectionResult, error)

	// GetBalances는 통화 코드별 잔고를 조회합니다
	GetBalances(ctx context.Context) (map[string]domain.Balance, error)
}

// Passive는 외부 호출 없이 저장된 스냅샷을 그대로 돌려주는 어댑터입니다.
// 동기화 서비스는 이런 어댑터의 잔고를 다시 쓰지 않습니다.
type Passive interface {
	Passive() bool
}

// IsPassive는 어댑터가 수동 입력 잔고를 다루는지 확인합니다
func IsPassive(a Adapter) bool {
	p, ok := a.(Passive)
	return ok && p.Passive()
}

// SnapshotReader는 저장된 잔고 스냅샷 조회 인터페이스입니다
type SnapshotReader interface {
	ListBalances(ctx context.Context, providerID int64) ([]*domain.WalletBalance, error)
}

// AddressValidator는 지갑 주소 검증 인터페이스입니다
type AddressValidator interface {
	Validate(currency, network, addr string) (string, error)
}

// Options는 어댑터 생성 시 공통으로 전달되는 의존성입니다
type Options struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Snapshots      SnapshotReader
	Addresses      AddressValidator
	Logger         *zap.Logger
}

// Factory는 공급자 설정으로 어댑터를 생성하는 함수 타입입니다
type Factory func(p *domain.WalletProvider, opts Options) (Adapter, error)

// Registry는 공급자 유형별 어댑터 팩토리를 등록하고 관리합니다
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.ProviderType]Factory
}

// NewRegistry는 새로운 어댑터 레지스트리를 생성합니다
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[domain.ProviderType]Factory),
	}
}

// Register는 새로운 어댑터 팩토리를 레지스트리에 등록합니다
func (r *Registry) Register(t domain.ProviderType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = factory
}

// Create는 공급자 유형에 맞는 어댑터를 생성합니다
func (r *Registry) Create(p *domain.WalletProvider, opts Options) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[p.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.NewProviderError(p.Name, "create", domain.ErrUnsupportedAdapter,
			fmt.Errorf("유형: %s", p.Type))
	}
	return factory(p, opts)
}

// Types는 등록된 공급자 유형을 정렬해서 반환합니다
func (r *Registry) Types() []domain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.ProviderType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
