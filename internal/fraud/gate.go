// Package fraud는 대기 중인 출금 요청의 위험도를 평가합니다.
package fraud

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
)

// 위험 요인 이름
const (
	FactorVelocity    = "velocity"
	FactorAmount      = "amount_deviation"
	FactorAddress     = "address"
	FactorAccountAge  = "account_age"
	FactorBlacklisted = "blacklisted_address"
)

// Weights는 요인별 가중치입니다
type Weights struct {
	Velocity   float64
	Amount     float64
	Address    float64
	AccountAge float64
}

// Thresholds는 등급 경계값입니다 (MEDIUM < HIGH < CRITICAL)
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// Config는 사기 탐지 설정입니다
type Config struct {
	Window            time.Duration   // 속도 계산 구간
	MaxPerWindow      int             // 구간 내 허용 출금 횟수
	SuspiciousAmount  decimal.Decimal // 의심 금액 기준
	DeviationMultiple float64         // 평균 대비 이 배수 이상이면 최대 점수
	Weights           Weights
	Thresholds        Thresholds
}

// DefaultConfig는 기본 설정을 반환합니다
func DefaultConfig() Config {
	return Config{
		Window:            time.Hour,
		MaxPerWindow:      10,
		SuspiciousAmount:  decimal.NewFromInt(10000),
		DeviationMultiple: 5,
		Weights:           Weights{Velocity: 0.3, Amount: 0.3, Address: 0.2, AccountAge: 0.2},
		Thresholds:        Thresholds{Medium: 0.4, High: 0.7, Critical: 0.9},
	}
}

// Validate는 설정의 일관성을 확인합니다
func (c Config) Validate() error {
	t := c.Thresholds
	if !(0 < t.Medium && t.Medium < t.High && t.High < t.Critical && t.Critical <= 1) {
		return fmt.Errorf("임계값은 0 < MEDIUM < HIGH < CRITICAL <= 1 이어야 합니다")
	}
	w := c.Weights
	if w.Velocity < 0 || w.Amount < 0 || w.Address < 0 || w.AccountAge < 0 {
		return fmt.Errorf("가중치는 음수일 수 없습니다")
	}
	if w.Velocity+w.Amount+w.Address+w.AccountAge == 0 {
		return fmt.Errorf("가중치의 합은 0보다 커야 합니다")
	}
	if c.MaxPerWindow < 1 || c.Window <= 0 || !c.SuspiciousAmount.IsPositive() || c.DeviationMultiple <= 1 {
		return fmt.Errorf("속도/금액 기준값이 올바르지 않습니다")
	}
	return nil
}

// History는 평가에 필요한 조회 연산입니다. 승인 트랜잭션이 그대로 전달됩니다.
type History interface {
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	ListWithdrawalRequests(ctx context.Context, filter storage.WithdrawalFilter) ([]*domain.WithdrawalRequest, error)
}

// Gate는 출금 요청 위험 평가기입니다
type Gate struct {
	cfg       Config
	blacklist Blacklist
	now       func() time.Time
	logger    *zap.Logger
}

// Option은 Gate 옵션입니다
type Option func(*Gate)

// WithClock은 현재 시각 함수를 지정합니다
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate는 새로운 Gate를 생성합니다
func NewGate(cfg Config, blacklist Blacklist, log *zap.Logger, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("사기 탐지 설정 오류: %w", err)
	}
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	g := &Gate{cfg: cfg, blacklist: blacklist, now: time.Now, logger: logger.OrNop(log)}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Analyze는 요청의 위험 점수와 등급을 계산합니다. 상태를 변경하지 않습니다.
func (g *Gate) Analyze(ctx context.Context, h History, req *domain.WithdrawalRequest) (*domain.FraudAlert, error) {
	client, err := h.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("고객사 조회 실패: %w", err)
	}

	history, err := h.ListWithdrawalRequests(ctx, storage.WithdrawalFilter{ClientID: req.ClientID})
	if err != nil {
		return nil, fmt.Errorf("출금 이력 조회 실패: %w", err)
	}
	prior := make([]*domain.WithdrawalRequest, 0, len(history))
	for _, r := range history {
		if r.ID != req.ID {
			prior = append(prior, r)
		}
	}

	blacklisted, err := g.blacklist.Contains(ctx, req.Address)
	if err != nil {
		return nil, fmt.Errorf("블랙리스트 조회 실패: %w", err)
	}

	now := g.now()
	w := g.cfg.Weights
	factors := []domain.RiskFactor{
		g.velocity(req, prior, now, w.Velocity),
		g.amountDeviation(req, prior, w.Amount),
		g.addressNovelty(req, prior, w.Address),
		g.accountAge(client, now, w.AccountAge),
	}

	var weighted, total float64
	for _, f := range factors {
		weighted += f.Score * f.Weight
		total += f.Weight
	}
	score := clamp(weighted / total)

	if blacklisted {
		score = 1
		factors = append(factors, domain.RiskFactor{
			Name:   FactorBlacklisted,
			Score:  1,
			Detail: "차단 목록에 등록된 주소입니다",
		})
	}
	score = math.Round(score*10000) / 10000

	level := g.level(score)
	alert := &domain.FraudAlert{
		RequestID:         req.ID,
		Level:             level,
		Score:             score,
		Factors:           factors,
		RecommendedAction: recommendedAction(level),
	}

	g.logger.Debug("출금 위험 평가",
		zap.Int64("request_id", req.ID),
		zap.String("level", level.String()),
		zap.Float64("score", score),
	)
	return alert, nil
}

// level은 점수를 등급으로 변환합니다
func (g *Gate) level(score float64) domain.RiskLevel {
	t := g.cfg.Thresholds
	switch {
	case score >= t.Critical:
		return domain.RiskCritical
	case score >= t.High:
		return domain.RiskHigh
	case score >= t.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// velocity는 구간 내 출금 횟수와 금액을 평가합니다.
// 최종 사용자가 지정된 요청은 해당 사용자의 이력만 봅니다.
// 횟수는 통화와 무관하게 세고 합계 금액은 같은 통화끼리만 더합니다.
func (g *Gate) velocity(req *domain.WithdrawalRequest, prior []*domain.WithdrawalRequest, now time.Time, weight float64) domain.RiskFactor {
	since := now.Add(-g.cfg.Window)
	count := 1
	volume := req.Amount
	for _, r := range prior {
		if r.CreatedAt.Before(since) {
			continue
		}
		if req.UserID != "" && r.UserID != req.UserID {
			continue
		}
		count++
		if sameCurrency(r, req) {
			volume = volume.Add(r.Amount)
		}
	}

	countScore := clamp(float64(count) / float64(g.cfg.MaxPerWindow))
	volumeScore := clamp(ratio(volume, g.cfg.SuspiciousAmount))

	return domain.RiskFactor{
		Name:   FactorVelocity,
		Score:  math.Max(countScore, volumeScore),
		Weight: weight,
		Detail: fmt.Sprintf("%s 동안 %d건, 합계 %s", g.cfg.Window, count, volume.String()),
	}
}

// amountDeviation은 같은 통화의 과거 평균 대비 금액을 평가합니다.
// 거절되거나 취소된 요청은 평균에 넣지 않습니다.
func (g *Gate) amountDeviation(req *domain.WithdrawalRequest, prior []*domain.WithdrawalRequest, weight float64) domain.RiskFactor {
	bySize := clamp(ratio(req.Amount, g.cfg.SuspiciousAmount))

	sum := decimal.Zero
	n := 0
	for _, r := range prior {
		if !sameCurrency(r, req) {
			continue
		}
		if r.Status == domain.StatusRejected || r.Status == domain.StatusCancelled {
			continue
		}
		sum = sum.Add(r.Amount)
		n++
	}
	if n == 0 {
		return domain.RiskFactor{
			Name:   FactorAmount,
			Score:  bySize,
			Weight: weight,
			Detail: "같은 통화 출금 이력 없음",
		}
	}

	avg := sum.Div(decimal.NewFromInt(int64(n)))
	r := ratio(req.Amount, avg)
	deviation := clamp((r - 1) / (g.cfg.DeviationMultiple - 1))

	return domain.RiskFactor{
		Name:   FactorAmount,
		Score:  math.Max(deviation, bySize),
		Weight: weight,
		Detail: fmt.Sprintf("평균 %s 대비 %.2f배", avg.StringFixed(8), r),
	}
}

// addressNovelty는 처음 사용하는 주소인지 평가합니다
func (g *Gate) addressNovelty(req *domain.WithdrawalRequest, prior []*domain.WithdrawalRequest, weight float64) domain.RiskFactor {
	target := normalizeAddress(req.Address)
	for _, r := range prior {
		if normalizeAddress(r.Address) != target {
			continue
		}
		switch r.Status {
		case domain.StatusApproved, domain.StatusProcessing, domain.StatusCompleted:
			return domain.RiskFactor{Name: FactorAddress, Score: 0, Weight: weight, Detail: "사용 이력이 있는 주소"}
		}
	}
	return domain.RiskFactor{Name: FactorAddress, Score: 1, Weight: weight, Detail: "처음 사용하는 주소"}
}

// accountAge는 계정 생성 후 경과 기간을 평가합니다
func (g *Gate) accountAge(client *domain.Client, now time.Time, weight float64) domain.RiskFactor {
	age := now.Sub(client.CreatedAt)
	score := 0.0
	switch {
	case age < 7*24*time.Hour:
		score = 1
	case age < 30*24*time.Hour:
		score = 0.5
	}
	return domain.RiskFactor{
		Name:   FactorAccountAge,
		Score:  score,
		Weight: weight,
		Detail: fmt.Sprintf("가입 후 %d일", int(age.Hours()/24)),
	}
}

func recommendedAction(level domain.RiskLevel) string {
	switch level {
	case domain.RiskCritical:
		return "승인 불가: 보안 담당자의 수동 검토가 필요합니다"
	case domain.RiskHigh:
		return "승인 가능하나 추가 본인 확인을 권장합니다"
	case domain.RiskMedium:
		return "특이 사항을 확인한 뒤 진행하십시오"
	default:
		return "정상 처리"
	}
}

func sameCurrency(a, b *domain.WithdrawalRequest) bool {
	return strings.EqualFold(a.Currency, b.Currency)
}

func ratio(a, b decimal.Decimal) float64 {
	if !b.IsPositive() {
		return 0
	}
	f, _ := a.Div(b).Float64()
	return f
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
