package domain

// WithdrawalStatus는 출금 요청의 상태를 정의합니다
type WithdrawalStatus string

const (
	StatusPending    WithdrawalStatus = "PENDING"
	StatusApproved   WithdrawalStatus = "APPROVED"
	StatusRejected   WithdrawalStatus = "REJECTED"
	StatusProcessing WithdrawalStatus = "PROCESSING"
	StatusCompleted  WithdrawalStatus = "COMPLETED"
	StatusFailed     WithdrawalStatus = "FAILED"
	StatusCancelled  WithdrawalStatus = "CANCELLED"
)

// transitions는 허용되는 상태 전이 표입니다.
// 표에 없는 상태는 종료 상태로 취급합니다.
var transitions = map[WithdrawalStatus][]WithdrawalStatus{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// AllStatuses는 정의된 모든 출금 상태를 반환합니다
func AllStatuses() []WithdrawalStatus {
	return []WithdrawalStatus{
		StatusPending, StatusApproved, StatusRejected, StatusProcessing,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
}

// CanTransitionTo는 현재 상태에서 next 상태로 전이할 수 있는지 확인합니다
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reaches는 전이 표를 따라 target 상태에 도달할 수 있는지 확인합니다 (자기 자신 제외)
func (s WithdrawalStatus) Reaches(target WithdrawalStatus) bool {
	seen := map[WithdrawalStatus]bool{s: true}
	queue := []WithdrawalStatus{s}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// IsTerminal은 더 이상 전이가 불가능한 상태인지 확인합니다
func (s WithdrawalStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid는 정의된 상태 값인지 확인합니다
func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusProcessing,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ReservedStatuses는 잔고에서 차감되는 출금 상태 목록입니다.
// 대기 중인 요청도 자금을 예약합니다.
var ReservedStatuses = []WithdrawalStatus{
	StatusPending, StatusApproved, StatusProcessing, StatusCompleted,
}

// CommissionStatuses는 출금 수수료 계산 대상 상태 목록입니다
var CommissionStatuses = []WithdrawalStatus{
	StatusApproved, StatusProcessing, StatusCompleted,
}

// WithdrawalType은 출금 요청 유형을 정의합니다
type WithdrawalType string

const (
	TypeUserRequest   WithdrawalType = "USER_REQUEST"   // 고객사의 최종 사용자 요청
	TypeClientBalance WithdrawalType = "CLIENT_BALANCE" // 고객사 잔고 인출
)

// IsValid는 정의된 출금 유형인지 확인합니다
func (t WithdrawalType) IsValid() bool {
	return t == TypeUserRequest || t == TypeClientBalance
}

// PaymentStatus는 결제 상태를 정의합니다
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// ProviderType은 지갑 공급자 유형을 정의합니다
type ProviderType string

const (
	ProviderBinance      ProviderType = "binance"
	ProviderCoinbase     ProviderType = "coinbase"
	ProviderKraken       ProviderType = "kraken"
	ProviderManualWallet ProviderType = "manual_wallet"
)

// HealthStatus는 공급자 연결 상태를 정의합니다
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthHealthy HealthStatus = "healthy"
	HealthError   HealthStatus = "error"
)

// UpdateSource는 잔고 스냅샷의 출처를 정의합니다
type UpdateSource string

const (
	SourceAPI    UpdateSource = "api"
	SourceManual UpdateSource = "manual"
)

// RiskLevel은 사기 탐지 위험 등급입니다
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String은 RiskLevel의 문자열 표현을 반환합니다
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText는 RiskLevel을 문자열로 직렬화합니다
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText는 문자열 표현을 RiskLevel로 복원합니다
func (r *RiskLevel) UnmarshalText(text []byte) error {
	for _, level := range []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical} {
		if level.String() == string(text) {
			*r = level
			return nil
		}
	}
	return NewValidationError("risk_level", "알 수 없는 위험 등급입니다: %q", string(text))
}
