package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 공통 에러 정의
var (
	ErrNotFound           = errors.New("대상을 찾을 수 없습니다")
	ErrValidation         = errors.New("입력값이 유효하지 않습니다")
	ErrInsufficientFunds  = errors.New("잔고가 부족합니다")
	ErrInvalidTransition  = errors.New("허용되지 않는 상태 전이입니다")
	ErrFraudBlocked       = errors.New("사기 위험으로 승인이 차단되었습니다")
	ErrProviderConfig     = errors.New("공급자 설정 오류")
	ErrProviderAuth       = errors.New("공급자 인증 실패")
	ErrProviderTimeout    = errors.New("공급자 응답 시간 초과")
	ErrProviderResponse   = errors.New("공급자 응답 오류")
	ErrUnsupportedAdapter = errors.New("지원하지 않는 공급자 유형입니다")
)

// ValidationError는 입력값 검증 실패를 나타냅니다
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("유효성 검사 실패 [%s]: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("유효성 검사 실패: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError는 새로운 ValidationError를 생성합니다
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError는 요청 금액이 가용 잔고를 초과할 때 반환됩니다
type InsufficientBalanceError struct {
	ClientID  int64
	Requested decimal.Decimal // 금액 + 수수료
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("잔고 부족 [client=%d]: 요청 %s, 가용 %s",
		e.ClientID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientFunds }

// InvalidStateTransitionError는 허용되지 않는 상태 전이를 나타냅니다.
// Conflict가 true이면 다른 요청이 먼저 상태를 바꾼 경우입니다.
type InvalidStateTransitionError struct {
	RequestID int64
	From      WithdrawalStatus
	To        WithdrawalStatus
	Conflict  bool
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("상태 전이 불가 [request=%d]: %s -> %s", e.RequestID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidTransition }

// NewTransitionError는 전이 실패 에러를 생성합니다.
// 요청이 이미 전이 출발 상태를 지나쳤다면 다른 작업과 경합한 것으로 표시합니다.
func NewTransitionError(requestID int64, from, to WithdrawalStatus) *InvalidStateTransitionError {
	conflict := false
	for _, src := range AllStatuses() {
		if src.CanTransitionTo(to) && src.Reaches(from) {
			conflict = true
			break
		}
	}
	return &InvalidStateTransitionError{
		RequestID: requestID,
		From:      from,
		To:        to,
		Conflict:  conflict,
	}
}

// FraudBlockError는 CRITICAL 등급으로 승인이 차단되었음을 나타냅니다
type FraudBlockError struct {
	RequestID int64
	Alert     FraudAlert
}

func (e *FraudBlockError) Error() string {
	return fmt.Sprintf("승인 차단 [request=%d, 등급=%s, 점수=%.2f]: %s",
		e.RequestID, e.Alert.Level, e.Alert.Score, e.Alert.RecommendedAction)
}

func (e *FraudBlockError) Unwrap() error { return ErrFraudBlocked }

// ProviderError는 외부 공급자 호출 에러를 확장한 구조체입니다.
// Kind는 ErrProviderConfig, ErrProviderAuth, ErrProviderTimeout, ErrProviderResponse 중 하나입니다.
type ProviderError struct {
	Provider string
	Op       string
	Kind     error
	Err      error
}

// Error는 error 인터페이스를 구현합니다
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("공급자 에러 [%s, 작업: %s]: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("공급자 에러 [%s, 작업: %s]: %v", e.Provider, e.Op, e.Kind)
}

// Unwrap은 에러 종류와 내부 에러를 함께 반환합니다 (errors.Is/As 지원)
func (e *ProviderError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewProviderError는 새로운 ProviderError를 생성합니다
func NewProviderError(provider, op string, kind, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Kind:     kind,
		Err:      err,
	}
}

// IsProviderError는 공급자 계열 에러인지 확인합니다
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
