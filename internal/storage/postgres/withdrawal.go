package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

const requestColumns = `
	id, client_id, user_id, amount, currency, network, address, fee, net_amount,
	withdrawal_type, status, approved_by, approved_at, rejected_by, rejected_at,
	rejection_reason, cancelled_at, created_at, updated_at`

const withdrawalColumns = `
	id, request_id, client_id, amount, currency, address, status, tx_reference,
	failure_reason, created_at, completed_at, updated_at`

// reader는 storage.Reader의 SQL 구현입니다
type reader struct {
	q querier
}

func (r reader) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	return r.scanClient(ctx, `
		SELECT id, name, deposit_commission_rate, withdrawal_commission_rate, created_at
		FROM clients WHERE id = $1`, id)
}

func (r reader) scanClient(ctx context.Context, query string, id int64) (*domain.Client, error) {
	var c domain.Client
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.DepositCommissionRate, &c.WithdrawalCommissionRate, &c.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("고객사 %d", id))
	}
	return &c, nil
}

func (r reader) SumCompletedPayments(ctx context.Context, clientID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE client_id = $1 AND status = $2`,
		clientID, string(domain.PaymentCompleted),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("결제 합계 조회 실패: %w", err)
	}
	return sum, nil
}

func (r reader) SumWithdrawals(ctx context.Context, f storage.WithdrawalFilter) (decimal.Decimal, error) {
	where, args := buildWhere(f)
	var sum decimal.Decimal
	err := r.q.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM withdrawal_requests"+where, args...,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("출금 합계 조회 실패: %w", err)
	}
	return sum, nil
}

func (r reader) GetWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	row := r.q.QueryRow(ctx, "SELECT"+requestColumns+" FROM withdrawal_requests WHERE id = $1", id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("출금 요청 %d", id))
	}
	return req, nil
}

func (r reader) ListWithdrawalRequests(ctx context.Context, f storage.WithdrawalFilter) ([]*domain.WithdrawalRequest, error) {
	where, args := buildWhere(f)
	query := "SELECT" + requestColumns + " FROM withdrawal_requests" + where + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("출금 요청 목록 조회 실패: %w", err)
	}
	defer rows.Close()

	var out []*domain.WithdrawalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("출금 요청 스캔 실패: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r reader) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	row := r.q.QueryRow(ctx, "SELECT"+withdrawalColumns+" FROM withdrawals WHERE id = $1", id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("출금 실행 기록 %d", id))
	}
	return w, nil
}

func (t *tx) LockClient(ctx context.Context, id int64) (*domain.Client, error) {
	return t.scanClient(ctx, `
		SELECT id, name, deposit_commission_rate, withdrawal_commission_rate, created_at
		FROM clients WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	row := t.q.QueryRow(ctx, "SELECT"+requestColumns+" FROM withdrawal_requests WHERE id = $1 FOR UPDATE", id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("출금 요청 %d", id))
	}
	return req, nil
}

func (t *tx) CreateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (
			client_id, user_id, amount, currency, network, address, fee, net_amount,
			withdrawal_type, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		req.ClientID, req.UserID, req.Amount, req.Currency, req.Network, req.Address,
		req.Fee, nullDecimal(req.NetAmount), string(req.Type), string(req.Status),
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("출금 요청 저장 실패: %w", err)
	}
	return nil
}

func (t *tx) UpdateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	err := t.q.QueryRow(ctx, `
		UPDATE withdrawal_requests SET
			status = $2, fee = $3, net_amount = $4,
			approved_by = $5, approved_at = $6,
			rejected_by = $7, rejected_at = $8, rejection_reason = $9,
			cancelled_at = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		req.ID, string(req.Status), req.Fee, nullDecimal(req.NetAmount),
		req.ApprovedBy, req.ApprovedAt,
		req.RejectedBy, req.RejectedAt, req.RejectionReason,
		req.CancelledAt,
	).Scan(&req.UpdatedAt)
	if err != nil {
		return notFound(err, fmt.Sprintf("출금 요청 %d", req.ID))
	}
	return nil
}

func (t *tx) LockWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	row := t.q.QueryRow(ctx, "SELECT"+withdrawalColumns+" FROM withdrawals WHERE id = $1 FOR UPDATE", id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("출금 실행 기록 %d", id))
	}
	return w, nil
}

func (t *tx) CreateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO withdrawals (request_id, client_id, amount, currency, address, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		w.RequestID, w.ClientID, w.Amount, w.Currency, w.Address, string(w.Status),
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("출금 실행 기록 저장 실패: %w", err)
	}
	return nil
}

func (t *tx) UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	err := t.q.QueryRow(ctx, `
		UPDATE withdrawals SET
			status = $2, tx_reference = $3, failure_reason = $4, completed_at = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		w.ID, string(w.Status), w.TxReference, w.FailureReason, w.CompletedAt,
	).Scan(&w.UpdatedAt)
	if err != nil {
		return notFound(err, fmt.Sprintf("출금 실행 기록 %d", w.ID))
	}
	return nil
}

// buildWhere는 필터로부터 WHERE 절과 인자를 생성합니다
func buildWhere(f storage.WithdrawalFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ClientID != 0 {
		add("client_id = $%d", f.ClientID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Address != "" {
		add("address = $%d", f.Address)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		add("withdrawal_type = ANY($%d)", types)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRequest(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var (
		req       domain.WithdrawalRequest
		netAmount decimal.NullDecimal
		wType     string
		status    string
	)
	err := row.Scan(
		&req.ID, &req.ClientID, &req.UserID, &req.Amount, &req.Currency, &req.Network,
		&req.Address, &req.Fee, &netAmount, &wType, &status,
		&req.ApprovedBy, &req.ApprovedAt, &req.RejectedBy, &req.RejectedAt,
		&req.RejectionReason, &req.CancelledAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Type = domain.WithdrawalType(wType)
	req.Status = domain.WithdrawalStatus(status)
	if netAmount.Valid {
		v := netAmount.Decimal
		req.NetAmount = &v
	}
	return &req, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var (
		w      domain.Withdrawal
		status string
	)
	err := row.Scan(
		&w.ID, &w.RequestID, &w.ClientID, &w.Amount, &w.Currency, &w.Address, &status,
		&w.TxReference, &w.FailureReason, &w.CreatedAt, &w.CompletedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WithdrawalStatus(status)
	return &w, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
