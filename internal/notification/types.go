package notification

import "github.com/arsmhmt/paycrypt-sub000/internal/domain"

const (
	ColorSuccess = 0x00FF00 // 녹색
	ColorError   = 0xFF0000 // 빨간색
	ColorInfo    = 0x0000FF // 파란색
	ColorWarning = 0xFFA500 // 주황색
)

// Notifier는 알림 전송 인터페이스를 정의합니다
type Notifier interface {
	// SendFraudWarning은 승인자에게 알려야 하는 위험 평가 결과를 전송합니다
	SendFraudWarning(req *domain.WithdrawalRequest, alert *domain.FraudAlert) error

	// SendProviderError는 공급자 동기화 실패를 전송합니다
	SendProviderError(provider *domain.WalletProvider, err error) error

	// SendError는 에러 알림을 전송합니다
	SendError(err error) error

	// SendInfo는 일반 정보 알림을 전송합니다
	SendInfo(message string) error
}

// GetColorForRisk는 위험 등급에 따른 색상을 반환합니다
func GetColorForRisk(level domain.RiskLevel) int {
	switch level {
	case domain.RiskLow:
		return ColorSuccess
	case domain.RiskMedium:
		return ColorInfo
	case domain.RiskHigh:
		return ColorWarning
	case domain.RiskCritical:
		return ColorError
	default:
		return ColorInfo
	}
}
