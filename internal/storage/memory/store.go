// Package memory는 프로세스 내부에서 동작하는 저장소 구현입니다.
// 트랜잭션은 하나의 뮤텍스로 직렬화되며 성공 시 상태 사본을 교체하여 커밋합니다.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

type balanceKey struct {
	providerID int64
	currency   string
}

type state struct {
	clients     map[int64]*domain.Client
	payments    []*domain.Payment
	requests    map[int64]*domain.WithdrawalRequest
	withdrawals map[int64]*domain.Withdrawal
	providers   map[int64]*domain.WalletProvider
	balances    map[balanceKey]*domain.WalletBalance
	seq         int64
}

func newState() *state {
	return &state{
		clients:     make(map[int64]*domain.Client),
		requests:    make(map[int64]*domain.WithdrawalRequest),
		withdrawals: make(map[int64]*domain.Withdrawal),
		providers:   make(map[int64]*domain.WalletProvider),
		balances:    make(map[balanceKey]*domain.WalletBalance),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, v := range s.clients {
		cl := *v
		c.clients[id] = &cl
	}
	for _, p := range s.payments {
		pp := *p
		c.payments = append(c.payments, &pp)
	}
	for id, v := range s.requests {
		c.requests[id] = v.Clone()
	}
	for id, v := range s.withdrawals {
		c.withdrawals[id] = v.Clone()
	}
	for id, v := range s.providers {
		c.providers[id] = v.Clone()
	}
	for k, v := range s.balances {
		b := *v
		c.balances[k] = &b
	}
	c.seq = s.seq
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store는 메모리 기반 storage.Store 구현입니다
type Store struct {
	mu  sync.Mutex
	cur *state
	now func() time.Time
}

// NewStore는 비어 있는 메모리 저장소를 생성합니다
func NewStore() *Store {
	return &Store{cur: newState(), now: time.Now}
}

var _ storage.Store = (*Store)(nil)

// InTx는 fn을 직렬화된 트랜잭션으로 실행합니다.
// fn이 에러를 반환하면 모든 변경이 폐기됩니다.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.cur.clone()
	if err := fn(&tx{view: view{st: work}, now: s.now}); err != nil {
		return err
	}
	s.cur = work
	return nil
}

// Close는 아무 작업도 하지 않습니다
func (s *Store) Close() {}

func (s *Store) read() view {
	return view{st: s.cur}
}

// AddClient는 고객사를 등록하고 ID를 부여합니다
func (s *Store) AddClient(c *domain.Client) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl := *c
	cl.ID = s.cur.nextID()
	if cl.CreatedAt.IsZero() {
		cl.CreatedAt = s.now()
	}
	s.cur.clients[cl.ID] = &cl
	c.ID = cl.ID
	return cl.ID
}

// AddPayment는 결제 기록을 추가합니다
func (s *Store) AddPayment(p *domain.Payment) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	pp := *p
	pp.ID = s.cur.nextID()
	if pp.CreatedAt.IsZero() {
		pp.CreatedAt = s.now()
	}
	s.cur.payments = append(s.cur.payments, &pp)
	p.ID = pp.ID
	return pp.ID
}

// AddWithdrawalRequest는 검증 없이 출금 요청을 그대로 저장합니다 (초기 데이터 적재용)
func (s *Store) AddWithdrawalRequest(r *domain.WithdrawalRequest) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rr := r.Clone()
	rr.ID = s.cur.nextID()
	if rr.CreatedAt.IsZero() {
		rr.CreatedAt = s.now()
	}
	rr.UpdatedAt = rr.CreatedAt
	s.cur.requests[rr.ID] = rr
	r.ID = rr.ID
	return rr.ID
}

// AddProvider는 지갑 공급자를 등록합니다
func (s *Store) AddProvider(p *domain.WalletProvider) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	pp := p.Clone()
	pp.ID = s.cur.nextID()
	if pp.HealthStatus == "" {
		pp.HealthStatus = domain.HealthUnknown
	}
	if pp.CreatedAt.IsZero() {
		pp.CreatedAt = s.now()
	}
	s.cur.providers[pp.ID] = pp
	p.ID = pp.ID
	return pp.ID
}

// PutBalance는 잔고 스냅샷을 직접 기록합니다 (수동 지갑 입력용)
func (s *Store) PutBalance(b *domain.WalletBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bb := *b
	s.cur.balances[balanceKey{b.ProviderID, b.Currency}] = &bb
}

func (s *Store) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetClient(ctx, id)
}

func (s *Store) SumCompletedPayments(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SumCompletedPayments(ctx, clientID)
}

func (s *Store) SumWithdrawals(ctx context.Context, f storage.WithdrawalFilter) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SumWithdrawals(ctx, f)
}

func (s *Store) GetWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetWithdrawalRequest(ctx, id)
}

func (s *Store) ListWithdrawalRequests(ctx context.Context, f storage.WithdrawalFilter) ([]*domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListWithdrawalRequests(ctx, f)
}

func (s *Store) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetWithdrawal(ctx, id)
}

func (s *Store) GetProvider(ctx context.Context, id int64) (*domain.WalletProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetProvider(ctx, id)
}

func (s *Store) ListProviders(ctx context.Context, activeOnly bool) ([]*domain.WalletProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListProviders(ctx, activeOnly)
}

func (s *Store) ListBalances(ctx context.Context, providerID int64) ([]*domain.WalletBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListBalances(ctx, providerID)
}

// view는 특정 상태 사본에 대한 조회 연산입니다. 반환값은 모두 복사본입니다.
type view struct {
	st *state
}

func (v view) GetClient(_ context.Context, id int64) (*domain.Client, error) {
	c, ok := v.st.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cl := *c
	return &cl, nil
}

func (v view) SumCompletedPayments(_ context.Context, clientID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range v.st.payments {
		if p.ClientID == clientID && p.Status == domain.PaymentCompleted {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (v view) SumWithdrawals(_ context.Context, f storage.WithdrawalFilter) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, r := range v.st.requests {
		if f.Matches(r) {
			sum = sum.Add(r.Amount)
		}
	}
	return sum, nil
}

func (v view) GetWithdrawalRequest(_ context.Context, id int64) (*domain.WithdrawalRequest, error) {
	r, ok := v.st.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (v view) ListWithdrawalRequests(_ context.Context, f storage.WithdrawalFilter) ([]*domain.WithdrawalRequest, error) {
	var out []*domain.WithdrawalRequest
	for _, r := range v.st.requests {
		if f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	// 최신순
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v view) GetWithdrawal(_ context.Context, id int64) (*domain.Withdrawal, error) {
	w, ok := v.st.withdrawals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return w.Clone(), nil
}

func (v view) GetProvider(_ context.Context, id int64) (*domain.WalletProvider, error) {
	p, ok := v.st.providers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (v view) ListProviders(_ context.Context, activeOnly bool) ([]*domain.WalletProvider, error) {
	out := make([]*domain.WalletProvider, 0, len(v.st.providers))
	for _, p := range v.st.providers {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v view) ListBalances(_ context.Context, providerID int64) ([]*domain.WalletBalance, error) {
	var out []*domain.WalletBalance
	for k, b := range v.st.balances {
		if k.providerID == providerID {
			bb := *b
			out = append(out, &bb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// tx는 상태 사본 위에서 동작하는 storage.Tx 구현입니다
type tx struct {
	view
	now func() time.Time
}

func (t *tx) LockClient(ctx context.Context, id int64) (*domain.Client, error) {
	return t.GetClient(ctx, id)
}

func (t *tx) LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	return t.GetWithdrawalRequest(ctx, id)
}

func (t *tx) CreateWithdrawalRequest(_ context.Context, req *domain.WithdrawalRequest) error {
	if _, ok := t.st.clients[req.ClientID]; !ok {
		return domain.ErrNotFound
	}
	req.ID = t.st.nextID()
	now := t.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	t.st.requests[req.ID] = req.Clone()
	return nil
}

func (t *tx) UpdateWithdrawalRequest(_ context.Context, req *domain.WithdrawalRequest) error {
	if _, ok := t.st.requests[req.ID]; !ok {
		return domain.ErrNotFound
	}
	req.UpdatedAt = t.now()
	t.st.requests[req.ID] = req.Clone()
	return nil
}

func (t *tx) LockWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	return t.GetWithdrawal(ctx, id)
}

func (t *tx) CreateWithdrawal(_ context.Context, w *domain.Withdrawal) error {
	for _, existing := range t.st.withdrawals {
		if existing.RequestID == w.RequestID {
			return domain.NewValidationError("request_id", "이미 실행 기록이 존재합니다: %d", w.RequestID)
		}
	}
	w.ID = t.st.nextID()
	now := t.now()
	w.CreatedAt = now
	w.UpdatedAt = now
	t.st.withdrawals[w.ID] = w.Clone()
	return nil
}

func (t *tx) UpdateWithdrawal(_ context.Context, w *domain.Withdrawal) error {
	if _, ok := t.st.withdrawals[w.ID]; !ok {
		return domain.ErrNotFound
	}
	w.UpdatedAt = t.now()
	t.st.withdrawals[w.ID] = w.Clone()
	return nil
}

func (t *tx) LockProvider(ctx context.Context, id int64) (*domain.WalletProvider, error) {
	return t.GetProvider(ctx, id)
}

func (t *tx) SetPrimaryProvider(_ context.Context, id int64) error {
	if _, ok := t.st.providers[id]; !ok {
		return domain.ErrNotFound
	}
	for pid, p := range t.st.providers {
		p.IsPrimary = pid == id
	}
	return nil
}

func (t *tx) UpdateProviderHealth(_ context.Context, id int64, status domain.HealthStatus, detail string, syncedAt *time.Time) error {
	p, ok := t.st.providers[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.HealthStatus = status
	p.HealthDetail = detail
	if syncedAt != nil {
		at := *syncedAt
		p.LastSyncAt = &at
	}
	return nil
}

func (t *tx) UpsertBalance(_ context.Context, b *domain.WalletBalance) error {
	if _, ok := t.st.providers[b.ProviderID]; !ok {
		return domain.ErrNotFound
	}
	bb := *b
	t.st.balances[balanceKey{b.ProviderID, b.Currency}] = &bb
	return nil
}
