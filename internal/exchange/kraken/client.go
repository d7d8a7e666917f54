// Package kraken은 Kraken 계정 잔고 어댑터입니다.
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange"
	"github.com/arsmhmt/paycrypt-sub000/internal/exchange/rest"
)

const (
	MainnetURL  = "https://api.kraken.com"
	balancePath = "/0/private/Balance"
)

// assetCodes는 Kraken 고유 자산 코드를 일반 통화 코드로 바꾸는 표입니다
var assetCodes = map[string]string{
	"XXBT": "BTC",
	"XBT":  "BTC",
	"XETH": "ETH",
	"XLTC": "LTC",
	"XXRP": "XRP",
	"XXDG": "DOGE",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
}

// NormalizeAsset은 Kraken 자산 코드를 일반 통화 코드로 변환합니다
func NormalizeAsset(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if normalized, ok := assetCodes[code]; ok {
		return normalized
	}
	return code
}

// Client는 Kraken API 클라이언트입니다
type Client struct {
	apiKey string
	secret string
	http   *rest.Client
	now    func() time.Time
	nonces *nonceTracker
}

// nonceTracker는 API 키별 마지막 nonce를 기억합니다.
// 어댑터는 동기화와 연결 확인마다 새로 만들어지므로 상태를 패키지 수준에 둡니다.
type nonceTracker struct {
	mu   sync.Mutex
	last map[string]int64
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{last: make(map[string]int64)}
}

// next는 밀리초 단위 시각을 기준으로 키별 단조 증가 nonce를 반환합니다
func (t *nonceTracker) next(apiKey string, now time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce := now.UnixMilli()
	if last := t.last[apiKey]; nonce <= last {
		nonce = last + 1
	}
	t.last[apiKey] = nonce
	return nonce
}

var sharedNonces = newNonceTracker()

var _ exchange.Adapter = (*Client)(nil)

// New는 공급자 설정으로 어댑터를 생성합니다. Kraken은 별도 샌드박스가 없습니다.
func New(p *domain.WalletProvider, opts exchange.Options) (exchange.Adapter, error) {
	baseURL := MainnetURL
	if p.APIURL != "" {
		baseURL = p.APIURL
	}
	return &Client{
		apiKey: p.Credentials.APIKey,
		secret: p.Credentials.APISecret,
		http: rest.New(rest.Config{
			Provider:       p.Name,
			BaseURL:        baseURL,
			Timeout:        opts.Timeout,
			ConnectTimeout: opts.ConnectTimeout,
			Logger:         opts.Logger,
		}),
		now:    time.Now,
		nonces: sharedNonces,
	}, nil
}

// TestConnection은 잔고 조회로 자격 증명을 확인합니다
func (c *Client) TestConnection(ctx context.Context) (domain.ConnectionResult, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return domain.ConnectionResult{Detail: err.Error()}, err
	}
	return domain.ConnectionResult{
		OK:     true,
		Detail: fmt.Sprintf("연결 성공: 잔고가 있는 자산 %d개", len(balances)),
	}, nil
}

// GetBalances는 자산별 잔고를 조회합니다.
// Kraken은 잠긴 금액을 구분하지 않으므로 전액을 사용 가능 잔고로 봅니다.
func (c *Client) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	const op = "GetBalances"

	if c.apiKey == "" || c.secret == "" {
		return nil, c.http.ConfigError(op, errors.New("API 키와 시크릿이 필요합니다"))
	}
	key, err := base64.StdEncoding.DecodeString(c.secret)
	if err != nil {
		return nil, c.http.ConfigError(op, fmt.Errorf("시크릿이 base64 형식이 아닙니다: %w", err))
	}

	nonce := strconv.FormatInt(c.nextNonce(), 10)
	form := url.Values{}
	form.Set("nonce", nonce)
	postData := form.Encode()

	var result struct {
		Error  []string                   `json:"error"`
		Result map[string]decimal.Decimal `json:"result"`
	}
	resp, err := c.http.R(ctx).
		SetHeader("API-Key", c.apiKey).
		SetHeader("API-Sign", sign(key, balancePath, nonce, postData)).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(postData).
		Post(balancePath)
	if err := c.http.Do(op, resp, err, &result); err != nil {
		return nil, err
	}
	if len(result.Error) > 0 {
		return nil, c.http.ResponseError(op, fmt.Errorf("API 에러: %s", strings.Join(result.Error, ", ")))
	}
	if result.Result == nil {
		return nil, c.http.ResponseError(op, errors.New("result 필드가 없습니다"))
	}

	balances := make(map[string]domain.Balance)
	for code, amount := range result.Result {
		asset := NormalizeAsset(code)
		b := balances[asset]
		b.Asset = asset
		b.Available = b.Available.Add(amount)
		balances[asset] = b
	}
	for asset, b := range balances {
		if !b.Total().IsPositive() {
			delete(balances, asset)
		}
	}
	return balances, nil
}

// nextNonce는 같은 API 키를 쓰는 모든 어댑터에서 엄격히 증가하는 nonce를 반환합니다
func (c *Client) nextNonce() int64 {
	return c.nonces.next(c.apiKey, c.now())
}

// sign은 path + SHA256(nonce + postData)에 대한 HMAC-SHA512 서명을 생성합니다
func sign(key []byte, path, nonce, postData string) string {
	digest := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
