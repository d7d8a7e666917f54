package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/metrics"
	"github.com/arsmhmt/paycrypt-sub000/internal/notification"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

// ErrSyncInProgress는 같은 공급자의 동기화가 이미 실행 중일 때 반환됩니다
var ErrSyncInProgress = errors.New("이미 동기화가 진행 중입니다")

// RetryConfig는 재시도 설정을 정의합니다
type RetryConfig struct {
	MaxRetries int           // 최대 재시도 횟수
	BaseDelay  time.Duration // 기본 대기 시간
	MaxDelay   time.Duration // 최대 대기 시간
	Factor     float64       // 대기 시간 증가 계수
}

// SyncConfig는 동기화 서비스 설정입니다
type SyncConfig struct {
	Retry       RetryConfig
	Concurrency int           // SyncAll 동시 실행 수
	LockTTL     time.Duration // 공급자별 잠금 유지 시간
}

// SyncService는 공급자 잔고를 조회해 스냅샷으로 저장합니다
type SyncService struct {
	store    storage.Store
	registry *Registry
	cfg      SyncConfig
	locker   Locker
	metrics  *metrics.Metrics
	notifier notification.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// SyncOption은 SyncService 옵션입니다
type SyncOption func(*SyncService)

// WithLocker는 공급자별 잠금 구현을 지정합니다
func WithLocker(l Locker) SyncOption {
	return func(s *SyncService) { s.locker = l }
}

// WithSyncMetrics는 지표 수집기를 지정합니다
func WithSyncMetrics(m *metrics.Metrics) SyncOption {
	return func(s *SyncService) { s.metrics = m }
}

// WithSyncNotifier는 동기화 실패 알림 전송기를 지정합니다
func WithSyncNotifier(n notification.Notifier) SyncOption {
	return func(s *SyncService) { s.notifier = n }
}

// WithSyncClock은 현재 시각 함수를 지정합니다
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// NewSyncService는 새로운 동기화 서비스를 생성합니다
func NewSyncService(store storage.Store, registry *Registry, cfg SyncConfig, log *zap.Logger, opts ...SyncOption) *SyncService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.Retry.Factor < 1 {
		cfg.Retry.Factor = 2
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}

	s := &SyncService{
		store:    store,
		registry: registry,
		cfg:      cfg,
		locker:   NewMemoryLocker(),
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute는 스케줄러에서 호출되는 주기 작업입니다
func (s *SyncService) Execute(ctx context.Context) error {
	return s.SyncAll(ctx)
}

// SyncProviderByID는 ID로 공급자를 조회한 뒤 동기화합니다
func (s *SyncService) SyncProviderByID(ctx context.Context, id int64) (map[string]domain.Balance, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SyncProvider(ctx, p)
}

// SyncProvider는 공급자의 잔고를 조회해 통화별 스냅샷으로 저장합니다.
// 실패하면 상태를 error로 기록하고 기존 스냅샷은 그대로 둡니다.
func (s *SyncService) SyncProvider(ctx context.Context, p *domain.WalletProvider) (map[string]domain.Balance, error) {
	release, ok, err := s.locker.TryLock(ctx, "wallet:sync:"+strconv.FormatInt(p.ID, 10), s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrSyncInProgress)
	}
	defer release()

	start := s.now()
	balances, passive, err := s.fetch(ctx, p)
	elapsed := s.now().Sub(start)
	s.metrics.ObserveSync(p.Name, err, elapsed)

	if err != nil {
		s.recordFailure(ctx, p, err)
		return nil, err
	}

	syncedAt := s.now()
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		if !passive {
			for _, b := range balances {
				if err := tx.UpsertBalance(ctx, &domain.WalletBalance{
					ProviderID:   p.ID,
					Currency:     b.Asset,
					Available:    b.Available,
					Locked:       b.Locked,
					Total:        b.Total(),
					LastUpdated:  syncedAt,
					UpdateSource: domain.SourceAPI,
				}); err != nil {
					return err
				}
			}
		}
		return tx.UpdateProviderHealth(ctx, p.ID, domain.HealthHealthy, "", &syncedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("잔고 스냅샷 저장 실패 [%s]: %w", p.Name, err)
	}

	for currency, b := range balances {
		total, _ := b.Total().Float64()
		s.metrics.SetBalance(p.Name, currency, total)
	}
	s.logger.Info("공급자 잔고 동기화 완료",
		zap.String("provider", p.Name),
		zap.Int("currencies", len(balances)),
		zap.Bool("passive", passive),
		zap.Duration("elapsed", elapsed),
	)
	return balances, nil
}

// fetch는 어댑터를 생성하고 잔고를 조회합니다. 시간 초과만 재시도합니다.
func (s *SyncService) fetch(ctx context.Context, p *domain.WalletProvider) (map[string]domain.Balance, bool, error) {
	adapter, err := s.registry.AdapterFor(p)
	if err != nil {
		return nil, false, err
	}
	passive := exchange.IsPassive(adapter)

	var balances map[string]domain.Balance
	err = s.withRetry(ctx, p.Name+" 잔고 조회", func() error {
		var err error
		balances, err = adapter.GetBalances(ctx)
		return err
	})
	return balances, passive, err
}

// recordFailure는 실패 상태를 기록하고 알림을 전송합니다
func (s *SyncService) recordFailure(ctx context.Context, p *domain.WalletProvider, cause error) {
	s.logger.Warn("공급자 잔고 동기화 실패",
		zap.String("provider", p.Name),
		zap.String("type", string(p.Type)),
		zap.Error(cause),
	)

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateProviderHealth(ctx, p.ID, domain.HealthError, cause.Error(), nil)
	})
	if err != nil {
		s.logger.Error("공급자 상태 기록 실패", zap.String("provider", p.Name), zap.Error(err))
	}

	if s.notifier != nil {
		if err := s.notifier.SendProviderError(p, cause); err != nil {
			s.logger.Warn("공급자 에러 알림 전송 실패", zap.String("provider", p.Name), zap.Error(err))
		}
	}
}

// SyncAll은 모든 활성 공급자를 병렬로 동기화합니다.
// 한 공급자의 실패는 다른 공급자에 영향을 주지 않으며, 실패 목록은 합쳐서 반환합니다.
func (s *SyncService) SyncAll(ctx context.Context) error {
	providers, err := s.store.ListProviders(ctx, true)
	if err != nil {
		return fmt.Errorf("공급자 목록 조회 실패: %w", err)
	}

	errs := make([]error, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, p := range providers {
		g.Go(func() error {
			_, err := s.SyncProvider(gctx, p)
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Debug("동기화 건너뜀", zap.String("provider", p.Name))
				return nil
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("일부 공급자 동기화 실패: %w", err)
	}
	return nil
}

// TestProvider는 연결 테스트를 실행하고 결과를 공급자 상태로 기록합니다
func (s *SyncService) TestProvider(ctx context.Context, id int64) (domain.ConnectionResult, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return domain.ConnectionResult{}, err
	}

	adapter, err := s.registry.AdapterFor(p)
	if err != nil {
		return domain.ConnectionResult{Detail: err.Error()}, err
	}

	result, testErr := adapter.TestConnection(ctx)
	status := domain.HealthHealthy
	if testErr != nil || !result.OK {
		status = domain.HealthError
	}

	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateProviderHealth(ctx, p.ID, status, result.Detail, nil)
	})
	if err != nil {
		return result, fmt.Errorf("공급자 상태 기록 실패: %w", err)
	}

	s.logger.Info("공급자 연결 테스트",
		zap.String("provider", p.Name),
		zap.Bool("ok", result.OK),
		zap.String("detail", result.Detail),
	)
	return result, testErr
}

// withRetry는 재시도 로직을 구현한 래퍼 함수입니다
func (s *SyncService) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := s.cfg.Retry.BaseDelay

	for attempt := 0; attempt <= s.cfg.Retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// 재시도 가능한 오류인지 확인
		if !IsRetryableError(err) {
			return err
		}
		if attempt == s.cfg.Retry.MaxRetries {
			return fmt.Errorf("최대 재시도 횟수 초과: %w", lastErr)
		}

		s.logger.Warn("재시도 예정",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", s.cfg.Retry.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		// 다음 재시도 전 대기
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			// 대기 시간을 증가시키되, 최대 대기 시간을 넘지 않도록 함
			delay = time.Duration(float64(delay) * s.cfg.Retry.Factor)
			if delay > s.cfg.Retry.MaxDelay {
				delay = s.cfg.Retry.MaxDelay
			}
		}
	}
	return lastErr
}

// IsRetryableError는 재시도할 가치가 있는 공급자 에러인지 확인합니다
func IsRetryableError(err error) bool {
	return errors.Is(err, domain.ErrProviderTimeout)
}
