package domain

// RiskFactor는 위험 점수를 구성하는 개별 요인입니다
type RiskFactor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"` // 0~1 사이로 정규화된 점수
	Weight float64 `json:"weight"`
	Detail string  `json:"detail,omitempty"`
}

// FraudAlert는 출금 요청에 대한 위험 평가 결과입니다 (저장하지 않음)
type FraudAlert struct {
	RequestID         int64        `json:"request_id"`
	Level             RiskLevel    `json:"risk_level"`
	Score             float64      `json:"risk_score"`
	Factors           []RiskFactor `json:"factors"`
	RecommendedAction string       `json:"recommended_action"`
}

// Blocks는 승인을 차단해야 하는 등급인지 확인합니다
func (a *FraudAlert) Blocks() bool {
	return a != nil && a.Level == RiskCritical
}

// NeedsAttention은 승인은 가능하지만 승인자에게 알려야 하는 등급인지 확인합니다
func (a *FraudAlert) NeedsAttention() bool {
	return a != nil && a.Level == RiskHigh
}
