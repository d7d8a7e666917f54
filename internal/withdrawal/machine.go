// Package withdrawal은 출금 요청의 생명주기를 관리합니다.
// 모든 전이는 하나의 트랜잭션 안에서 행을 잠근 뒤 현재 상태를 확인하고 기록합니다.
package withdrawal

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/address"
	"github.com/arsmhmt/paycrypt-sub000/internal/audit"
	"github.com/arsmhmt/paycrypt-sub000/internal/config"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/fraud"
	"github.com/arsmhmt/paycrypt-sub000/internal/ledger"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/metrics"
	"github.com/arsmhmt/paycrypt-sub000/internal/notification"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

// systemActor는 사람이 아닌 처리 주체입니다
const systemActor = "system"

// Machine은 출금 상태 머신입니다
type Machine struct {
	store     storage.Store
	ledger    *ledger.Ledger
	gate      *fraud.Gate
	addresses *address.Validator
	catalog   *config.Catalog
	audit     audit.Publisher
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option은 Machine 옵션입니다
type Option func(*Machine)

// WithAudit은 감사 이벤트 발행기를 지정합니다
func WithAudit(p audit.Publisher) Option {
	return func(m *Machine) { m.audit = p }
}

// WithNotifier는 위험 경고 알림 전송기를 지정합니다
func WithNotifier(n notification.Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithMetrics는 지표 수집기를 지정합니다
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithClock은 현재 시각 함수를 지정합니다
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine은 새로운 상태 머신을 생성합니다
func NewMachine(
	store storage.Store,
	l *ledger.Ledger,
	gate *fraud.Gate,
	addresses *address.Validator,
	catalog *config.Catalog,
	log *zap.Logger,
	opts ...Option,
) *Machine {
	m := &Machine{
		store:     store,
		ledger:    l,
		gate:      gate,
		addresses: addresses,
		catalog:   catalog,
		logger:    logger.OrNop(log),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.audit == nil {
		m.audit = audit.NewLogPublisher(m.logger)
	}
	return m
}

// CreateRequest는 출금 요청 생성 입력입니다
type CreateRequest struct {
	ClientID int64
	UserID   string
	Amount   decimal.Decimal
	Currency string
	Network  string
	Address  string
	Type     domain.WithdrawalType
}

// Get은 출금 요청을 조회합니다
func (m *Machine) Get(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	return m.store.GetWithdrawalRequest(ctx, id)
}

// List는 조건에 맞는 출금 요청을 조회합니다
func (m *Machine) List(ctx context.Context, filter storage.WithdrawalFilter) ([]*domain.WithdrawalRequest, error) {
	return m.store.ListWithdrawalRequests(ctx, filter)
}

// Create는 입력을 검증하고 PENDING 상태의 출금 요청을 저장합니다.
// 잔고 확인과 저장은 고객사 행을 잠근 같은 트랜잭션에서 수행합니다.
func (m *Machine) Create(ctx context.Context, in CreateRequest) (*domain.WithdrawalRequest, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))

	if !in.Amount.IsPositive() {
		return nil, m.fail("create", domain.NewValidationError("amount", "출금 금액은 0보다 커야 합니다"))
	}
	spec, ok := m.catalog.Currency(currency)
	if !ok {
		return nil, m.fail("create", domain.NewValidationError("currency", "지원하지 않는 통화입니다: %s", in.Currency))
	}
	if in.Amount.LessThan(spec.MinWithdrawal) {
		return nil, m.fail("create", domain.NewValidationError("amount",
			"최소 출금 금액은 %s %s입니다", spec.MinWithdrawal.String(), currency))
	}
	if err := validateType(in.Type, in.UserID); err != nil {
		return nil, m.fail("create", err)
	}
	network, err := m.addresses.Validate(currency, in.Network, in.Address)
	if err != nil {
		return nil, m.fail("create", err)
	}

	var created *domain.WithdrawalRequest
	err = m.store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.LockClient(ctx, in.ClientID); err != nil {
			return err
		}

		fee, err := m.ledger.WithSource(tx).CheckWithdrawal(ctx, in.ClientID, currency, in.Amount)
		if err != nil {
			return err
		}
		if !in.Amount.Sub(fee).IsPositive() {
			return domain.NewValidationError("amount", "수수료(%s)를 제외한 실수령액이 0 이하입니다", fee.String())
		}

		req := &domain.WithdrawalRequest{
			ClientID: in.ClientID,
			UserID:   strings.TrimSpace(in.UserID),
			Amount:   in.Amount,
			Currency: currency,
			Network:  network,
			Address:  strings.TrimSpace(in.Address),
			Type:     in.Type,
			Status:   domain.StatusPending,
		}
		req.SetFee(fee)
		if err := tx.CreateWithdrawalRequest(ctx, req); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, m.fail("create", err)
	}

	m.logger.Info("출금 요청 생성",
		zap.Int64("request_id", created.ID),
		zap.Int64("client_id", created.ClientID),
		zap.String("amount", created.Amount.String()),
		zap.String("currency", created.Currency),
	)
	m.metrics.ObserveTransition("create", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionCreate, actorForClient(in.ClientID), nil, created))
	return created, nil
}

// Approve는 위험 평가 후 PENDING 요청을 APPROVED로 전이합니다.
// CRITICAL 등급이면 FraudBlockError를 반환하고 상태는 바뀌지 않습니다.
// HIGH 등급은 승인되지만 결과와 함께 반환되고 알림으로 전달됩니다.
func (m *Machine) Approve(ctx context.Context, id int64, actorID string) (*domain.WithdrawalRequest, *domain.FraudAlert, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, nil, m.fail("approve", domain.NewValidationError("actor_id", "승인자 ID가 필요합니다"))
	}

	var (
		before, after *domain.WithdrawalRequest
		alert         *domain.FraudAlert
	)
	err := m.store.InTx(ctx, func(tx storage.Tx) error {
		req, err := tx.LockWithdrawalRequest(ctx, id)
		if err != nil {
			return err
		}
		before = req.Clone()
		alert, err = m.approveLocked(ctx, tx, req, actorID)
		if err != nil {
			return err
		}
		after = req
		return nil
	})

	if alert != nil {
		m.metrics.ObserveFraudLevel(alert.Level.String())
		m.warn(before, alert)
	}
	if err != nil {
		return nil, alert, m.fail("approve", err)
	}

	m.logger.Info("출금 요청 승인",
		zap.Int64("request_id", id),
		zap.String("actor_id", actorID),
		zap.String("risk_level", alert.Level.String()),
		zap.Float64("risk_score", alert.Score),
	)
	m.metrics.ObserveTransition("approve", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionApprove, actorID, before, after).
		WithMetadata("risk_level", alert.Level.String()))
	return after, alert, nil
}

// approveLocked는 잠긴 요청에 대해 상태 확인, 위험 평가, 승인 기록을 수행합니다
func (m *Machine) approveLocked(ctx context.Context, tx storage.Tx, req *domain.WithdrawalRequest, actorID string) (*domain.FraudAlert, error) {
	if !req.Status.CanTransitionTo(domain.StatusApproved) {
		return nil, domain.NewTransitionError(req.ID, req.Status, domain.StatusApproved)
	}

	alert, err := m.gate.Analyze(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if alert.Blocks() {
		return alert, &domain.FraudBlockError{RequestID: req.ID, Alert: *alert}
	}

	now := m.now()
	req.Status = domain.StatusApproved
	req.ApprovedBy = actorID
	req.ApprovedAt = &now
	if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
		return alert, err
	}
	return alert, nil
}

// Reject는 사유와 함께 PENDING 요청을 REJECTED로 전이합니다
func (m *Machine) Reject(ctx context.Context, id int64, actorID, reason string) (*domain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, m.fail("reject", domain.NewValidationError("reason", "거절 사유가 필요합니다"))
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, m.fail("reject", domain.NewValidationError("actor_id", "처리자 ID가 필요합니다"))
	}

	before, after, err := m.transition(ctx, id, domain.StatusRejected, func(req *domain.WithdrawalRequest) error {
		now := m.now()
		req.RejectedBy = actorID
		req.RejectedAt = &now
		req.RejectionReason = reason
		return nil
	})
	if err != nil {
		return nil, m.fail("reject", err)
	}

	m.logger.Info("출금 요청 거절", zap.Int64("request_id", id), zap.String("actor_id", actorID))
	m.metrics.ObserveTransition("reject", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionReject, actorID, before, after).WithMetadata("reason", reason))
	return after, nil
}

// Cancel은 요청한 고객사 본인만 PENDING 요청을 취소할 수 있습니다
func (m *Machine) Cancel(ctx context.Context, id int64, clientID int64) (*domain.WithdrawalRequest, error) {
	before, after, err := m.transition(ctx, id, domain.StatusCancelled, func(req *domain.WithdrawalRequest) error {
		if req.ClientID != clientID {
			return domain.NewValidationError("client_id", "본인의 출금 요청만 취소할 수 있습니다")
		}
		now := m.now()
		req.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, m.fail("cancel", err)
	}

	m.logger.Info("출금 요청 취소", zap.Int64("request_id", id), zap.Int64("client_id", clientID))
	m.metrics.ObserveTransition("cancel", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionCancel, actorForClient(clientID), before, after))
	return after, nil
}

// BeginProcessing은 APPROVED 요청을 PROCESSING으로 전이하고 실행 기록을 생성합니다
func (m *Machine) BeginProcessing(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	var (
		before, after *domain.WithdrawalRequest
		record        *domain.Withdrawal
	)
	err := m.store.InTx(ctx, func(tx storage.Tx) error {
		req, err := tx.LockWithdrawalRequest(ctx, id)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(domain.StatusProcessing) {
			return domain.NewTransitionError(req.ID, req.Status, domain.StatusProcessing)
		}
		before = req.Clone()

		req.Status = domain.StatusProcessing
		if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
			return err
		}

		w := &domain.Withdrawal{
			RequestID: req.ID,
			ClientID:  req.ClientID,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Address:   req.Address,
			Status:    domain.StatusProcessing,
		}
		if err := tx.CreateWithdrawal(ctx, w); err != nil {
			return err
		}
		after, record = req, w
		return nil
	})
	if err != nil {
		return nil, m.fail("processing", err)
	}

	m.logger.Info("출금 처리 시작", zap.Int64("request_id", id), zap.Int64("withdrawal_id", record.ID))
	m.metrics.ObserveTransition("processing", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionProcessing, systemActor, before, after))
	return record, nil
}

// Complete는 외부 서명자가 전송한 거래 참조를 기록하고 COMPLETED로 전이합니다
func (m *Machine) Complete(ctx context.Context, withdrawalID int64, txRef string) (*domain.Withdrawal, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, m.fail("complete", domain.NewValidationError("tx_reference", "거래 참조가 필요합니다"))
	}

	before, after, record, err := m.finish(ctx, withdrawalID, domain.StatusCompleted, func(w *domain.Withdrawal, now time.Time) {
		w.TxReference = txRef
		w.CompletedAt = &now
	})
	if err != nil {
		return nil, m.fail("complete", err)
	}

	m.logger.Info("출금 완료", zap.Int64("withdrawal_id", withdrawalID), zap.String("tx_reference", txRef))
	m.metrics.ObserveTransition("complete", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionComplete, systemActor, before, after).WithMetadata("tx_reference", txRef))
	return record, nil
}

// Fail은 실패 사유를 기록하고 FAILED로 전이합니다
func (m *Machine) Fail(ctx context.Context, withdrawalID int64, reason string) (*domain.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, m.fail("fail", domain.NewValidationError("reason", "실패 사유가 필요합니다"))
	}

	before, after, record, err := m.finish(ctx, withdrawalID, domain.StatusFailed, func(w *domain.Withdrawal, _ time.Time) {
		w.FailureReason = reason
	})
	if err != nil {
		return nil, m.fail("fail", err)
	}

	m.logger.Warn("출금 실패", zap.Int64("withdrawal_id", withdrawalID), zap.String("reason", reason))
	m.metrics.ObserveTransition("fail", "ok")
	m.publish(ctx, audit.NewEvent(audit.ActionFail, systemActor, before, after).WithMetadata("reason", reason))
	return record, nil
}

// transition은 단일 요청을 잠그고 to 상태로 전이합니다.
// mutate가 에러를 반환하면 트랜잭션 전체가 롤백됩니다.
func (m *Machine) transition(
	ctx context.Context,
	id int64,
	to domain.WithdrawalStatus,
	mutate func(req *domain.WithdrawalRequest) error,
) (before, after *domain.WithdrawalRequest, err error) {
	err = m.store.InTx(ctx, func(tx storage.Tx) error {
		req, err := tx.LockWithdrawalRequest(ctx, id)
		if err != nil {
			return err
		}
		before = req.Clone()
		if err := mutateLocked(ctx, tx, req, to, mutate); err != nil {
			return err
		}
		after = req
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// mutateLocked는 잠긴 요청의 전이를 확인하고 기록합니다
func mutateLocked(
	ctx context.Context,
	tx storage.Tx,
	req *domain.WithdrawalRequest,
	to domain.WithdrawalStatus,
	mutate func(req *domain.WithdrawalRequest) error,
) error {
	if mutate != nil {
		// 소유자 확인 같은 입력 검증은 상태 확인보다 먼저 수행합니다
		probe := req.Clone()
		if err := mutate(probe); err != nil {
			return err
		}
	}
	if !req.Status.CanTransitionTo(to) {
		return domain.NewTransitionError(req.ID, req.Status, to)
	}
	if mutate != nil {
		if err := mutate(req); err != nil {
			return err
		}
	}
	req.Status = to
	return tx.UpdateWithdrawalRequest(ctx, req)
}

// finish는 실행 기록과 요청을 함께 종료 상태로 전이합니다
func (m *Machine) finish(
	ctx context.Context,
	withdrawalID int64,
	to domain.WithdrawalStatus,
	apply func(w *domain.Withdrawal, now time.Time),
) (before, after *domain.WithdrawalRequest, record *domain.Withdrawal, err error) {
	err = m.store.InTx(ctx, func(tx storage.Tx) error {
		w, err := tx.LockWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if !w.Status.CanTransitionTo(to) {
			return domain.NewTransitionError(w.RequestID, w.Status, to)
		}

		req, err := tx.LockWithdrawalRequest(ctx, w.RequestID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(to) {
			return domain.NewTransitionError(req.ID, req.Status, to)
		}
		before = req.Clone()

		now := m.now()
		apply(w, now)
		w.Status = to
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}

		req.Status = to
		if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
			return err
		}
		after, record = req, w
		return nil
	})
	return before, after, record, err
}

// warn은 승인자에게 알려야 하는 평가 결과를 알림으로 전송합니다
func (m *Machine) warn(req *domain.WithdrawalRequest, alert *domain.FraudAlert) {
	if req == nil || alert == nil || m.notifier == nil {
		return
	}
	if !alert.NeedsAttention() && !alert.Blocks() {
		return
	}
	if err := m.notifier.SendFraudWarning(req, alert); err != nil {
		m.logger.Warn("위험 경고 알림 전송 실패", zap.Int64("request_id", req.ID), zap.Error(err))
	}
}

// publish는 커밋된 전이의 감사 이벤트를 발행합니다. 실패해도 전이는 유지됩니다.
func (m *Machine) publish(ctx context.Context, events ...audit.Event) {
	if len(events) == 0 {
		return
	}
	if err := m.audit.Publish(ctx, events...); err != nil {
		m.logger.Error("감사 이벤트 발행 실패", zap.Int("count", len(events)), zap.Error(err))
	}
}

// fail은 실패 지표를 기록하고 에러를 그대로 반환합니다
func (m *Machine) fail(action string, err error) error {
	m.metrics.ObserveTransition(action, outcome(err))
	return err
}

func outcome(err error) string {
	var (
		validation   *domain.ValidationError
		insufficient *domain.InsufficientBalanceError
		transition   *domain.InvalidStateTransitionError
		blocked      *domain.FraudBlockError
	)
	switch {
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &insufficient):
		return "insufficient_balance"
	case errors.As(err, &transition):
		return "invalid_transition"
	case errors.As(err, &blocked):
		return "fraud_blocked"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func validateType(t domain.WithdrawalType, userID string) error {
	switch t {
	case domain.TypeUserRequest:
		if strings.TrimSpace(userID) == "" {
			return domain.NewValidationError("user_id", "USER_REQUEST 유형은 사용자 ID가 필요합니다")
		}
	case domain.TypeClientBalance:
		if strings.TrimSpace(userID) != "" {
			return domain.NewValidationError("user_id", "CLIENT_BALANCE 유형에는 사용자 ID를 지정할 수 없습니다")
		}
	default:
		return domain.NewValidationError("withdrawal_type", "알 수 없는 출금 유형입니다: %q", t)
	}
	return nil
}

func actorForClient(clientID int64) string {
	return "client:" + strconv.FormatInt(clientID, 10)
}
