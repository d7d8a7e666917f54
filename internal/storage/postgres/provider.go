package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

const providerColumns = `
	id, name, provider_type, api_key, api_secret, api_passphrase, api_url, sandbox_mode,
	priority, is_primary, is_active, wallet_addresses, health_status, health_detail,
	last_sync_at, created_at`

func (r reader) GetProvider(ctx context.Context, id int64) (*domain.WalletProvider, error) {
	return r.getProvider(ctx, "SELECT"+providerColumns+" FROM wallet_providers WHERE id = $1", id)
}

func (r reader) getProvider(ctx context.Context, query string, id int64) (*domain.WalletProvider, error) {
	p, err := scanProvider(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("지갑 공급자 %d", id))
	}
	currencies, err := r.loadCurrencies(ctx, []int64{p.ID})
	if err != nil {
		return nil, err
	}
	p.Currencies = currencies[p.ID]
	return p, nil
}

func (r reader) ListProviders(ctx context.Context, activeOnly bool) ([]*domain.WalletProvider, error) {
	query := "SELECT" + providerColumns + " FROM wallet_providers"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY id"

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("지갑 공급자 목록 조회 실패: %w", err)
	}
	defer rows.Close()

	var (
		out []*domain.WalletProvider
		ids []int64
	)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("지갑 공급자 스캔 실패: %w", err)
		}
		out = append(out, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	currencies, err := r.loadCurrencies(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		p.Currencies = currencies[p.ID]
	}
	return out, nil
}

func (r reader) loadCurrencies(ctx context.Context, ids []int64) (map[int64][]domain.ProviderCurrency, error) {
	out := make(map[int64][]domain.ProviderCurrency, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.q.Query(ctx, `
		SELECT provider_id, currency_code, is_enabled
		FROM wallet_provider_currencies
		WHERE provider_id = ANY($1)
		ORDER BY provider_id, currency_code`, ids)
	if err != nil {
		return nil, fmt.Errorf("공급자 통화 조회 실패: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pid int64
			c   domain.ProviderCurrency
		)
		if err := rows.Scan(&pid, &c.Code, &c.Enabled); err != nil {
			return nil, fmt.Errorf("공급자 통화 스캔 실패: %w", err)
		}
		out[pid] = append(out[pid], c)
	}
	return out, rows.Err()
}

func (r reader) ListBalances(ctx context.Context, providerID int64) ([]*domain.WalletBalance, error) {
	rows, err := r.q.Query(ctx, `
		SELECT provider_id, currency_code, available, locked, total, last_updated, update_source
		FROM wallet_balances
		WHERE provider_id = $1
		ORDER BY currency_code`, providerID)
	if err != nil {
		return nil, fmt.Errorf("잔고 스냅샷 조회 실패: %w", err)
	}
	defer rows.Close()

	var out []*domain.WalletBalance
	for rows.Next() {
		var (
			b      domain.WalletBalance
			source string
		)
		if err := rows.Scan(&b.ProviderID, &b.Currency, &b.Available, &b.Locked, &b.Total, &b.LastUpdated, &source); err != nil {
			return nil, fmt.Errorf("잔고 스냅샷 스캔 실패: %w", err)
		}
		b.UpdateSource = domain.UpdateSource(source)
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (t *tx) LockProvider(ctx context.Context, id int64) (*domain.WalletProvider, error) {
	return t.getProvider(ctx, "SELECT"+providerColumns+" FROM wallet_providers WHERE id = $1 FOR UPDATE", id)
}

// SetPrimaryProvider는 다른 공급자의 primary 플래그를 먼저 해제한 뒤 대상을 지정합니다.
// 부분 유니크 인덱스 때문에 순서가 중요합니다.
func (t *tx) SetPrimaryProvider(ctx context.Context, id int64) error {
	if _, err := t.q.Exec(ctx,
		`UPDATE wallet_providers SET is_primary = false WHERE is_primary AND id <> $1`, id); err != nil {
		return fmt.Errorf("기존 primary 해제 실패: %w", err)
	}
	tag, err := t.q.Exec(ctx, `UPDATE wallet_providers SET is_primary = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("primary 지정 실패: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("지갑 공급자 %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) UpdateProviderHealth(ctx context.Context, id int64, status domain.HealthStatus, detail string, syncedAt *time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE wallet_providers SET
			health_status = $2,
			health_detail = $3,
			last_sync_at = COALESCE($4, last_sync_at)
		WHERE id = $1`,
		id, string(status), detail, syncedAt)
	if err != nil {
		return fmt.Errorf("공급자 상태 갱신 실패: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("지갑 공급자 %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpsertBalance는 (공급자, 통화) 단위의 유일한 변경 지점입니다
func (t *tx) UpsertBalance(ctx context.Context, b *domain.WalletBalance) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO wallet_balances (
			provider_id, currency_code, available, locked, total, last_updated, update_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, currency_code) DO UPDATE SET
			available = EXCLUDED.available,
			locked = EXCLUDED.locked,
			total = EXCLUDED.total,
			last_updated = EXCLUDED.last_updated,
			update_source = EXCLUDED.update_source`,
		b.ProviderID, b.Currency, b.Available, b.Locked, b.Total, b.LastUpdated, string(b.UpdateSource))
	if err != nil {
		return fmt.Errorf("잔고 스냅샷 저장 실패 (%s): %w", b.Currency, err)
	}
	return nil
}

func scanProvider(row pgx.Row) (*domain.WalletProvider, error) {
	var (
		p      domain.WalletProvider
		pType  string
		health string
	)
	err := row.Scan(
		&p.ID, &p.Name, &pType,
		&p.Credentials.APIKey, &p.Credentials.APISecret, &p.Credentials.Passphrase,
		&p.APIURL, &p.Sandbox, &p.Priority, &p.IsPrimary, &p.IsActive,
		&p.WalletAddresses, &health, &p.HealthDetail, &p.LastSyncAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = domain.ProviderType(pType)
	p.HealthStatus = domain.HealthStatus(health)
	return &p, nil
}
