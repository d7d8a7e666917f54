// Package coinbase는 Coinbase Pro 계정 잔고 어댑터입니다.
package coinbase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/rest"
)

const (
	MainnetURL = "https://api.pro.coinbase.com"
	SandboxURL = "https://api-public.sandbox.pro.coinbase.com"

	accountsPath = "/accounts"
)

// Client는 Coinbase Pro API 클라이언트입니다
type Client struct {
	apiKey     string
	secret     string
	passphrase string
	http       *rest.Client
	now        func() time.Time
}

var _ exchange.Adapter = (*Client)(nil)

// New는 공급자 설정으로 어댑터를 생성합니다
func New(p *domain.WalletProvider, opts exchange.Options) (exchange.Adapter, error) {
	baseURL := MainnetURL
	if p.Sandbox {
		baseURL = SandboxURL
	}
	if p.APIURL != "" {
		baseURL = p.APIURL
	}

	return &Client{
		apiKey:     p.Credentials.APIKey,
		secret:     p.Credentials.APISecret,
		passphrase: p.Credentials.Passphrase,
		http: rest.New(rest.Config{
			Provider:       p.Name,
			BaseURL:        baseURL,
			Timeout:        opts.Timeout,
			ConnectTimeout: opts.ConnectTimeout,
			Logger:         opts.Logger,
		}),
		now: time.Now,
	}, nil
}

// TestConnection은 계정 목록 조회로 자격 증명을 확인합니다
func (c *Client) TestConnection(ctx context.Context) (domain.ConnectionResult, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return domain.ConnectionResult{Detail: err.Error()}, err
	}
	return domain.ConnectionResult{
		OK:     true,
		Detail: fmt.Sprintf("연결 성공: 잔고가 있는 계정 %d개", len(balances)),
	}, nil
}

// GetBalances는 통화별 계정 잔고를 조회합니다.
// 보류(hold) 금액은 잠긴 잔고로 취급합니다.
func (c *Client) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	const op = "GetBalances"

	key, err := c.signingKey()
	if err != nil {
		return nil, c.http.ConfigError(op, err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := sign(key, timestamp, http.MethodGet, accountsPath, "")

	var accounts []struct {
		Currency  string          `json:"currency"`
		Balance   decimal.Decimal `json:"balance"`
		Available decimal.Decimal `json:"available"`
		Hold      decimal.Decimal `json:"hold"`
	}
	resp, err := c.http.R(ctx).
		SetHeader("CB-ACCESS-KEY", c.apiKey).
		SetHeader("CB-ACCESS-SIGN", signature).
		SetHeader("CB-ACCESS-TIMESTAMP", timestamp).
		SetHeader("CB-ACCESS-PASSPHRASE", c.passphrase).
		Get(accountsPath)
	if err := c.http.Do(op, resp, err, &accounts); err != nil {
		return nil, err
	}

	balances := make(map[string]domain.Balance)
	for _, a := range accounts {
		code := strings.ToUpper(a.Currency)
		if code == "" {
			continue
		}
		b := domain.Balance{Asset: code, Available: a.Available, Locked: a.Hold}
		if !b.Total().IsPositive() {
			continue
		}
		if prev, ok := balances[code]; ok {
			b.Available = b.Available.Add(prev.Available)
			b.Locked = b.Locked.Add(prev.Locked)
		}
		balances[code] = b
	}
	return balances, nil
}

// signingKey는 자격 증명을 확인하고 base64로 인코딩된 시크릿을 디코딩합니다
func (c *Client) signingKey() ([]byte, error) {
	if c.apiKey == "" || c.secret == "" || c.passphrase == "" {
		return nil, errors.New("API 키, 시크릿, 패스프레이즈가 모두 필요합니다")
	}
	key, err := base64.StdEncoding.DecodeString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("시크릿이 base64 형식이 아닙니다: %w", err)
	}
	return key, nil
}

// sign은 timestamp + method + path + body에 대한 서명을 생성합니다
func sign(key []byte, timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
