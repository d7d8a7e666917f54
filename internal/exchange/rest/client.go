// Package rest는 공급자 어댑터가 함께 쓰는 HTTP 전송 계층입니다.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
)

// UserAgent는 모든 공급자 요청에 붙는 User-Agent입니다
const UserAgent = "PayCrypt-Gateway/1.0"

const (
	defaultTimeout        = 10 * time.Second
	defaultConnectTimeout = 10 * time.Second
	maxErrorBody          = 512
)

// Config는 전송 계층 설정입니다
type Config struct {
	Provider       string // 에러 메시지에 쓰이는 공급자 이름
	BaseURL        string
	Timeout        time.Duration // 요청 전체 타임아웃
	ConnectTimeout time.Duration // TCP 연결 타임아웃
	Logger         *zap.Logger   // 분류된 실패를 Debug로 남김
}

// Client는 공급자 이름과 에러 분류를 함께 다루는 resty 래퍼입니다
type Client struct {
	provider string
	http     *resty.Client
	logger   *zap.Logger
}

// New는 새로운 전송 클라이언트를 생성합니다
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	httpClient := resty.New().
		SetTransport(transport).
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		provider: cfg.Provider,
		http:     httpClient,
		logger:   logger.OrNop(cfg.Logger).With(zap.String("provider", cfg.Provider)),
	}
}

// R은 컨텍스트가 연결된 새 요청을 생성합니다
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// Provider는 공급자 이름을 반환합니다
func (c *Client) Provider() string {
	return c.provider
}

// Do는 요청 결과를 분류하고, 성공 시 본문을 out으로 디코딩합니다
func (c *Client) Do(op string, resp *resty.Response, err error, out any) error {
	if err := c.Classify(op, resp, err); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return c.ResponseError(op, fmt.Errorf("응답 파싱 실패: %w", err))
	}
	return nil
}

// Classify는 전송 에러와 HTTP 상태를 공급자 에러 종류로 분류합니다.
// 401/403은 인증 실패, 타임아웃과 연결 실패는 시간 초과, 그 밖의 비정상 응답은 응답 오류입니다.
func (c *Client) Classify(op string, resp *resty.Response, err error) error {
	classified := c.classify(op, resp, err)
	if classified != nil {
		fields := []zap.Field{zap.String("op", op), zap.Error(classified)}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode()), zap.Duration("elapsed", resp.Time()))
		}
		c.logger.Debug("공급자 요청 실패", fields...)
	}
	return classified
}

func (c *Client) classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		var netErr net.Error
		if isTimeout(err) || errors.As(err, &netErr) {
			return domain.NewProviderError(c.provider, op, domain.ErrProviderTimeout, err)
		}
		return domain.NewProviderError(c.provider, op, domain.ErrProviderResponse, err)
	}
	if resp == nil {
		return domain.NewProviderError(c.provider, op, domain.ErrProviderResponse, errors.New("응답이 없습니다"))
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewProviderError(c.provider, op, domain.ErrProviderAuth,
			fmt.Errorf("HTTP %d: %s", status, snippet(resp.Body())))
	case status < 200 || status >= 300:
		return domain.NewProviderError(c.provider, op, domain.ErrProviderResponse,
			fmt.Errorf("HTTP %d: %s", status, snippet(resp.Body())))
	}
	return nil
}

// ResponseError는 정상 상태 코드지만 내용이 잘못된 응답을 나타냅니다
func (c *Client) ResponseError(op string, err error) error {
	return domain.NewProviderError(c.provider, op, domain.ErrProviderResponse, err)
}

// ConfigError는 요청 전에 발견된 설정 오류를 나타냅니다
func (c *Client) ConfigError(op string, err error) error {
	return domain.NewProviderError(c.provider, op, domain.ErrProviderConfig, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
