package withdrawal

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/audit"
	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

// 일괄 처리에서 건너뛴 사유
const (
	SkipStatusConflict = "status_conflict"
	SkipNotFound       = "not_found"
	SkipFraudBlocked   = "fraud_blocked"
)

// Skipped는 일괄 처리에서 제외된 요청입니다
type Skipped struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// BulkResult는 일괄 처리 결과입니다
type BulkResult struct {
	Processed []int64                      `json:"processed"`
	Skipped   []Skipped                    `json:"skipped"`
	Alerts    map[int64]*domain.FraudAlert `json:"alerts,omitempty"`
}

// BulkApprove는 여러 요청을 하나의 트랜잭션에서 승인합니다.
// 처리할 수 없는 요청은 사유와 함께 건너뛰고 나머지는 그대로 커밋합니다.
// 잠금 순서를 고정하기 위해 ID 오름차순으로 처리합니다.
func (m *Machine) BulkApprove(ctx context.Context, ids []int64, actorID string) (*BulkResult, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, m.fail("bulk_approve", domain.NewValidationError("actor_id", "승인자 ID가 필요합니다"))
	}

	var (
		result *BulkResult
		events []audit.Event
		warned []warning
	)
	err := m.store.InTx(ctx, func(tx storage.Tx) error {
		result = &BulkResult{Alerts: make(map[int64]*domain.FraudAlert)}
		events, warned = nil, nil

		for _, id := range normalizeIDs(ids) {
			req, err := tx.LockWithdrawalRequest(ctx, id)
			if err != nil {
				if skip, ok := skipFor(id, err); ok {
					result.Skipped = append(result.Skipped, skip)
					continue
				}
				return err
			}
			before := req.Clone()

			alert, err := m.approveLocked(ctx, tx, req, actorID)
			if alert != nil {
				result.Alerts[id] = alert
				warned = append(warned, warning{req: before, alert: alert})
			}
			if err != nil {
				if skip, ok := skipFor(id, err); ok {
					result.Skipped = append(result.Skipped, skip)
					continue
				}
				return err
			}

			result.Processed = append(result.Processed, id)
			events = append(events, audit.NewEvent(audit.ActionApprove, actorID, before, req).
				WithMetadata("risk_level", alert.Level.String()).
				WithMetadata("bulk", "true"))
		}
		return nil
	})

	for _, w := range warned {
		m.metrics.ObserveFraudLevel(w.alert.Level.String())
		m.warn(w.req, w.alert)
	}
	if err != nil {
		return nil, m.fail("bulk_approve", err)
	}

	m.logger.Info("일괄 승인 완료",
		zap.String("actor_id", actorID),
		zap.Int("processed", len(result.Processed)),
		zap.Int("skipped", len(result.Skipped)),
	)
	m.observeBulk("bulk_approve", result)
	m.publish(ctx, events...)
	return result, nil
}

// BulkReject는 여러 요청을 같은 사유로 거절합니다
func (m *Machine) BulkReject(ctx context.Context, ids []int64, actorID, reason string) (*BulkResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, m.fail("bulk_reject", domain.NewValidationError("reason", "거절 사유가 필요합니다"))
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, m.fail("bulk_reject", domain.NewValidationError("actor_id", "처리자 ID가 필요합니다"))
	}

	var (
		result *BulkResult
		events []audit.Event
	)
	err := m.store.InTx(ctx, func(tx storage.Tx) error {
		result = &BulkResult{}
		events = nil

		for _, id := range normalizeIDs(ids) {
			req, err := tx.LockWithdrawalRequest(ctx, id)
			if err == nil {
				before := req.Clone()
				err = mutateLocked(ctx, tx, req, domain.StatusRejected, func(r *domain.WithdrawalRequest) error {
					now := m.now()
					r.RejectedBy = actorID
					r.RejectedAt = &now
					r.RejectionReason = reason
					return nil
				})
				if err == nil {
					result.Processed = append(result.Processed, id)
					events = append(events, audit.NewEvent(audit.ActionReject, actorID, before, req).
						WithMetadata("reason", reason).
						WithMetadata("bulk", "true"))
					continue
				}
			}
			if skip, ok := skipFor(id, err); ok {
				result.Skipped = append(result.Skipped, skip)
				continue
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, m.fail("bulk_reject", err)
	}

	m.logger.Info("일괄 거절 완료",
		zap.String("actor_id", actorID),
		zap.Int("processed", len(result.Processed)),
		zap.Int("skipped", len(result.Skipped)),
	)
	m.observeBulk("bulk_reject", result)
	m.publish(ctx, events...)
	return result, nil
}

type warning struct {
	req   *domain.WithdrawalRequest
	alert *domain.FraudAlert
}

func (m *Machine) observeBulk(action string, result *BulkResult) {
	for range result.Processed {
		m.metrics.ObserveTransition(action, "ok")
	}
	for _, s := range result.Skipped {
		m.metrics.ObserveTransition(action, s.Reason)
	}
}

// skipFor는 건너뛸 수 있는 에러를 사유로 변환합니다.
// 그 외 에러는 트랜잭션 전체를 중단시킵니다.
func skipFor(id int64, err error) (Skipped, bool) {
	var (
		transition *domain.InvalidStateTransitionError
		blocked    *domain.FraudBlockError
	)
	switch {
	case errors.As(err, &transition):
		return Skipped{ID: id, Reason: SkipStatusConflict, Detail: string(transition.From)}, true
	case errors.As(err, &blocked):
		return Skipped{ID: id, Reason: SkipFraudBlocked, Detail: blocked.Alert.RecommendedAction}, true
	case errors.Is(err, domain.ErrNotFound):
		return Skipped{ID: id, Reason: SkipNotFound}, true
	default:
		return Skipped{}, false
	}
}

// normalizeIDs는 중복을 제거하고 오름차순으로 정렬합니다
func normalizeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
