// Package audit는 출금 상태 전이 감사 이벤트를 발행합니다.
// 이벤트 저장 형식은 외부 구독자가 결정합니다.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
)

// Action은 감사 대상 작업입니다
type Action string

const (
	ActionCreate     Action = "withdrawal.create"
	ActionApprove    Action = "withdrawal.approve"
	ActionReject     Action = "withdrawal.reject"
	ActionCancel     Action = "withdrawal.cancel"
	ActionProcessing Action = "withdrawal.processing"
	ActionComplete   Action = "withdrawal.complete"
	ActionFail       Action = "withdrawal.fail"
	ActionSetPrimary Action = "provider.set_primary"
)

// Event는 하나의 상태 변경 기록입니다
type Event struct {
	ID        uuid.UUID                 `json:"id"`
	Action    Action                    `json:"action"`
	RequestID int64                     `json:"request_id,omitempty"`
	ActorID   string                    `json:"actor_id,omitempty"`
	Before    *domain.WithdrawalRequest `json:"before,omitempty"`
	After     *domain.WithdrawalRequest `json:"after,omitempty"`
	Metadata  map[string]string         `json:"metadata,omitempty"`
	At        time.Time                 `json:"at"`
}

// NewEvent는 전후 상태 사본을 담은 이벤트를 생성합니다
func NewEvent(action Action, actorID string, before, after *domain.WithdrawalRequest) Event {
	e := Event{
		ID:      uuid.New(),
		Action:  action,
		ActorID: actorID,
		Before:  before.Clone(),
		After:   after.Clone(),
		At:      time.Now().UTC(),
	}
	switch {
	case after != nil:
		e.RequestID = after.ID
	case before != nil:
		e.RequestID = before.ID
	}
	return e
}

// WithMetadata는 부가 정보를 추가한 이벤트를 반환합니다
func (e Event) WithMetadata(key, value string) Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Publisher는 감사 이벤트 발행 인터페이스입니다
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// LogPublisher는 이벤트를 구조화 로그로 남깁니다
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher는 새로운 LogPublisher를 생성합니다
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.OrNop(log)}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("event_id", e.ID.String()),
			zap.String("action", string(e.Action)),
			zap.Int64("request_id", e.RequestID),
			zap.String("actor_id", e.ActorID),
		}
		if e.Before != nil {
			fields = append(fields, zap.String("before", string(e.Before.Status)))
		}
		if e.After != nil {
			fields = append(fields, zap.String("after", string(e.After.Status)))
		}
		for k, v := range e.Metadata {
			fields = append(fields, zap.String(k, v))
		}
		p.logger.Info("감사 이벤트", fields...)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder는 발행된 이벤트를 메모리에 보관합니다
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events는 지금까지 기록된 이벤트 사본을 반환합니다
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
