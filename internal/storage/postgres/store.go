// Package postgres는 PostgreSQL 기반 storage.Store 구현입니다.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Options는 연결 풀 설정입니다
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectRetries  int
}

// querier는 풀과 트랜잭션이 공통으로 제공하는 쿼리 메서드입니다
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store는 pgxpool을 사용하는 저장소입니다
type Store struct {
	reader
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Connect는 데이터베이스에 연결합니다. 실패 시 지수 백오프로 재시도합니다.
func Connect(ctx context.Context, dsn string, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("DB 설정 파싱 실패: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	retries := opts.ConnectRetries
	if retries <= 0 {
		retries = 1
	}

	delay := 2 * time.Second
	for attempt := 1; attempt <= retries; attempt++ {
		var pool *pgxpool.Pool
		pool, err = connectOnce(ctx, cfg)
		if err == nil {
			logger.Info("DB 연결 성공", zap.Int("attempt", attempt))
			return &Store{reader: reader{q: pool}, pool: pool, logger: logger}, nil
		}

		logger.Warn("DB 연결 실패", zap.Int("attempt", attempt), zap.Int("max", retries), zap.Error(err))
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}

	return nil, fmt.Errorf("DB 연결 실패 (%d회 시도): %w", retries, err)
}

func connectOnce(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping 실패: %w", err)
	}
	return pool, nil
}

// Migrate는 내장된 스키마 파일을 순서대로 적용합니다
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("마이그레이션 목록 조회 실패: %w", err)
	}
	for _, e := range entries {
		body, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("마이그레이션 파일 읽기 실패 (%s): %w", e.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("마이그레이션 적용 실패 (%s): %w", e.Name(), err)
		}
		s.logger.Info("마이그레이션 적용", zap.String("file", e.Name()))
	}
	return nil
}

// InTx는 fn을 하나의 트랜잭션으로 실행합니다. fn이 에러를 반환하면 롤백합니다.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("트랜잭션 시작 실패: %w", err)
	}
	defer func() {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("트랜잭션 롤백 실패", zap.Error(rbErr))
		}
	}()

	if err := fn(&tx{reader: reader{q: pgTx}}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("트랜잭션 커밋 실패: %w", err)
	}
	return nil
}

// Close는 연결 풀을 닫습니다
func (s *Store) Close() {
	s.pool.Close()
}

// notFound는 pgx.ErrNoRows를 domain.ErrNotFound로 변환합니다
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s 조회 실패: %w", what, err)
}

// tx는 pgx.Tx 위에서 동작하는 storage.Tx 구현입니다
type tx struct {
	reader
}
