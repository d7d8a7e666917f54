package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/address"
	"github.com/arsmhmt/paycrypt-sub000/internal/api"
	"github.com/arsmhmt/paycrypt-sub000/internal/audit"
	"github.com/arsmhmt/paycrypt-sub000/internal/config"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/fraud"
	"github.com/arsmhmt/paycrypt-sub000/internal/ledger"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/metrics"
	"github.com/arsmhmt/paycrypt-sub000/internal/notification"
	"github.com/arsmhmt/paycrypt-sub000/internal/notification/discord"
	"github.com/arsmhmt/paycrypt-sub000/internal/scheduler"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage/memory"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage/postgres"
	"github.com/arsmhmt/paycrypt-sub000/internal/wallet"
	"github.com/arsmhmt/paycrypt-sub000/internal/withdrawal"
)

func main() {
	// 명령줄 플래그 정의
	onceFlag := flag.Bool("once", false, "공급자 잔고를 한 번 동기화한 뒤 종료")
	testnetFlag := flag.Bool("testnet", false, "비트코인 계열 주소를 테스트넷 기준으로 검증")
	flag.Parse()

	// 설정 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("설정 로드 실패: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("로거 생성 실패: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, zl, *onceFlag, *testnetFlag); err != nil {
		zl.Error("게이트웨이 실행 실패", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger, once, testnet bool) error {
	zl.Info("결제 게이트웨이 백오피스 시작", zap.String("env", cfg.App.Env))

	// 저장소
	store, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer store.Close()

	// Discord 알림 (웹훅이 없으면 전송하지 않음)
	var notifier notification.Notifier = discord.NewClient(
		cfg.Discord.AlertWebhook,
		cfg.Discord.ErrorWebhook,
		cfg.Discord.InfoWebhook,
		discord.WithTimeout(10*time.Second),
	)

	// 통화 정책
	catalog, err := config.LoadCatalog(cfg.App.CatalogPath)
	if err != nil {
		return err
	}

	// Redis (선택): 블랙리스트와 동기화 잠금을 인스턴스 간에 공유
	var (
		blacklist fraud.Blacklist = fraud.NewMemoryBlacklist()
		locker    wallet.Locker   = wallet.NewMemoryLocker()
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return err
		}
		blacklist = fraud.NewRedisBlacklist(rdb, "")
		locker = wallet.NewRedisLocker(rdb, "")
		zl.Info("Redis 연결 완료", zap.String("addr", cfg.Redis.Addr))
	}
	if len(catalog.BlacklistedAddresses) > 0 {
		if err := blacklist.Add(ctx, catalog.BlacklistedAddresses...); err != nil {
			return err
		}
	}

	// 감사 이벤트: Kafka가 설정되지 않으면 로그로 남김
	var publisher audit.Publisher = audit.NewLogPublisher(zl)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = audit.NewKafkaPublisher(audit.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, zl), zl)
	}
	defer publisher.Close()

	// 지표
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 도메인 구성 요소
	addresses := address.NewValidator(catalog.Networks(), address.WithTestnet(testnet))
	gate, err := fraud.NewGate(fraudConfig(cfg), blacklist, zl)
	if err != nil {
		return err
	}
	l := ledger.New(store, catalog, zl)
	machine := withdrawal.NewMachine(store, l, gate, addresses, catalog, zl,
		withdrawal.WithAudit(publisher),
		withdrawal.WithNotifier(notifier),
		withdrawal.WithMetrics(m),
	)

	registry := wallet.NewRegistry(store, nil, exchange.Options{
		Timeout:        cfg.Provider.Timeout,
		ConnectTimeout: cfg.Provider.ConnectTimeout,
		Addresses:      addresses,
		Logger:         zl,
	}, zl, wallet.WithRegistryAudit(publisher))

	syncService := wallet.NewSyncService(store, registry, wallet.SyncConfig{
		Retry: wallet.RetryConfig{
			MaxRetries: cfg.Provider.MaxRetries,
			BaseDelay:  cfg.Provider.RetryBaseDelay,
			MaxDelay:   30 * time.Second,
			Factor:     2.0,
		},
		Concurrency: cfg.Provider.SyncConcurrency,
		LockTTL:     cfg.Provider.SyncLockTTL,
	}, zl,
		wallet.WithLocker(locker),
		wallet.WithSyncMetrics(m),
		wallet.WithSyncNotifier(notifier),
	)

	// 단발 동기화 모드
	if once {
		if err := syncService.SyncAll(ctx); err != nil {
			zl.Warn("일부 공급자 동기화 실패", zap.Error(err))
		}
		zl.Info("단발 동기화 완료. 프로그램을 종료합니다.")
		return nil
	}

	// 주기 동기화
	sched := scheduler.NewScheduler("balance-sync", cfg.App.SyncInterval, syncService, zl)
	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("스케줄러 실행 중 에러 발생", zap.Error(err))
			if err := notifier.SendError(err); err != nil {
				zl.Warn("에러 알림 전송 실패", zap.Error(err))
			}
		}
	}()

	// HTTP 서버
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           api.NewServer(machine, l, registry, syncService, reg, zl).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("HTTP 서버 시작", zap.String("addr", cfg.App.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if err := notifier.SendInfo("🚀 결제 게이트웨이 백오피스가 시작되었습니다."); err != nil {
		zl.Warn("시작 알림 전송 실패", zap.Error(err))
	}

	// 시그널 대기
	sigChan := make(chan os.Signal, 1)
	osSignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		zl.Info("시스템 종료 신호 수신", zap.String("signal", sig.String()))
	case err := <-serverErr:
		runErr = err
	}

	// 스케줄러 중지 후 서버 종료
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("HTTP 서버 종료 실패", zap.Error(err))
	}

	if err := notifier.SendInfo("👋 결제 게이트웨이 백오피스가 정상적으로 종료되었습니다."); err != nil {
		zl.Warn("종료 알림 전송 실패", zap.Error(err))
	}
	zl.Info("프로그램을 종료합니다.")
	return runErr
}

// openStore는 DATABASE_URL이 있으면 PostgreSQL, 없으면 메모리 저장소를 사용합니다
func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (storage.Store, error) {
	if cfg.Database.URL == "" {
		zl.Warn("DATABASE_URL이 없어 메모리 저장소를 사용합니다. 재시작하면 데이터가 사라집니다.")
		return memory.NewStore(), nil
	}

	pg, err := postgres.Connect(ctx, cfg.Database.URL, postgres.Options{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnLifetime,
		ConnectRetries:  cfg.Database.ConnectRetries,
	}, zl)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

// fraudConfig는 환경 설정을 사기 탐지 설정으로 변환합니다
func fraudConfig(cfg *config.Config) fraud.Config {
	f := cfg.Fraud
	return fraud.Config{
		Window:            f.Window,
		MaxPerWindow:      f.MaxPerWindow,
		SuspiciousAmount:  decimal.NewFromFloat(f.SuspiciousAmount),
		DeviationMultiple: f.DeviationMultiple,
		Weights: fraud.Weights{
			Velocity:   f.WeightVelocity,
			Amount:     f.WeightAmount,
			Address:    f.WeightAddress,
			AccountAge: f.WeightAccountAge,
		},
		Thresholds: fraud.Thresholds{
			Medium:   f.ThresholdMedium,
			High:     f.ThresholdHigh,
			Critical: f.ThresholdCritical,
		},
	}
}
