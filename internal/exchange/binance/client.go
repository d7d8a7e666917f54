// Package binance는 바이낸스 현물 계정 잔고 어댑터입니다.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/rest"
)

const (
	MainnetURL = "https://api.binance.com"
	TestnetURL = "https://testnet.binance.vision"
)

// Client는 바이낸스 API 클라이언트를 구현합니다
type Client struct {
	name             string
	apiKey           string
	secretKey        string
	baseURL          string
	timeout          time.Duration
	connectTimeout   time.Duration
	logger           *zap.Logger
	http             *rest.Client
	serverTimeOffset int64 // 서버 시간과의 차이를 저장
	timeSynced       bool
	mu               sync.RWMutex
}

var _ exchange.Adapter = (*Client)(nil)

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 요청 타임아웃과 연결 타임아웃을 설정합니다
func WithTimeout(timeout, connectTimeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.connectTimeout = connectTimeout
	}
}

// WithBaseURL은 기본 URL을 설정합니다
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTestnet은 테스트넷 사용 여부를 설정합니다
func WithTestnet(useTestnet bool) ClientOption {
	return func(c *Client) {
		if useTestnet {
			c.baseURL = TestnetURL
		} else {
			c.baseURL = MainnetURL
		}
	}
}

// WithLogger는 전송 계층 로거를 설정합니다
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithName은 로그와 에러에 쓰이는 공급자 이름을 설정합니다
func WithName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// NewClient는 새로운 바이낸스 API 클라이언트를 생성합니다
func NewClient(apiKey, secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		name:      string(domain.ProviderBinance),
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   MainnetURL,
	}

	// 옵션 적용
	for _, opt := range opts {
		opt(c)
	}

	c.http = rest.New(rest.Config{
		Provider:       c.name,
		BaseURL:        c.baseURL,
		Timeout:        c.timeout,
		ConnectTimeout: c.connectTimeout,
		Logger:         c.logger,
	})
	return c
}

// New는 공급자 설정으로 어댑터를 생성합니다.
// APIURL이 지정되어 있으면 샌드박스 설정보다 우선합니다.
func New(p *domain.WalletProvider, opts exchange.Options) (exchange.Adapter, error) {
	return NewClient(p.Credentials.APIKey, p.Credentials.APISecret,
		WithName(p.Name),
		WithTestnet(p.Sandbox),
		WithBaseURL(p.APIURL),
		WithTimeout(opts.Timeout, opts.ConnectTimeout),
		WithLogger(opts.Logger),
	), nil
}

// GetServerTime은 서버 시간을 조회합니다
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	resp, err := c.http.R(ctx).Get("/api/v3/time")
	if err := c.http.Do("GetServerTime", resp, err, &result); err != nil {
		return time.Time{}, err
	}
	if result.ServerTime == 0 {
		return time.Time{}, c.http.ResponseError("GetServerTime", errors.New("serverTime 필드가 없습니다"))
	}

	return time.UnixMilli(result.ServerTime), nil
}

// SyncTime은 바이낸스 서버와 시간을 동기화합니다
func (c *Client) SyncTime(ctx context.Context) error {
	serverTime, err := c.GetServerTime(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverTimeOffset = serverTime.UnixMilli() - time.Now().UnixMilli()
	c.timeSynced = true
	return nil
}

// TestConnection은 서버 시간을 동기화한 뒤 서명된 계정 조회로 자격 증명을 확인합니다
func (c *Client) TestConnection(ctx context.Context) (domain.ConnectionResult, error) {
	if err := c.SyncTime(ctx); err != nil {
		return domain.ConnectionResult{Detail: err.Error()}, err
	}
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return domain.ConnectionResult{Detail: err.Error()}, err
	}
	return domain.ConnectionResult{
		OK:     true,
		Detail: "연결 성공: 잔고가 있는 자산 " + strconv.Itoa(len(balances)) + "개",
	}, nil
}

// GetBalances는 계정의 잔고를 조회합니다.
// 아직 서버 시간을 맞춘 적이 없으면 먼저 동기화해서 recvWindow 거절을 피합니다.
func (c *Client) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	const op = "GetBalances"
	if c.apiKey == "" || c.secretKey == "" {
		return nil, c.http.ConfigError(op, errors.New("API 키와 시크릿이 필요합니다"))
	}
	if !c.isTimeSynced() {
		if err := c.SyncTime(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(c.getServerTime(), 10))
	query := params.Encode()

	var result struct {
		Balances *[]struct {
			Asset  string          `json:"asset"`
			Free   decimal.Decimal `json:"free"`
			Locked decimal.Decimal `json:"locked"`
		} `json:"balances"`
	}
	resp, err := c.http.R(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		Execute(http.MethodGet, "/api/v3/account?"+query+"&signature="+c.sign(query))
	if err := c.http.Do(op, resp, err, &result); err != nil {
		return nil, err
	}
	if result.Balances == nil {
		return nil, c.http.ResponseError(op, errors.New("balances 배열이 없습니다"))
	}

	balances := make(map[string]domain.Balance)
	for _, asset := range *result.Balances {
		b := domain.Balance{
			Asset:     strings.ToUpper(asset.Asset),
			Available: asset.Free,
			Locked:    asset.Locked,
		}
		// 잔고가 있는 자산만 포함
		if b.Total().IsPositive() {
			balances[b.Asset] = b
		}
	}

	return balances, nil
}

// sign은 요청에 대한 서명을 생성합니다
func (c *Client) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// getServerTime은 현재 서버 시간을 반환합니다
func (c *Client) getServerTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().UnixMilli() + c.serverTimeOffset
}

func (c *Client) isTimeSynced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeSynced
}
