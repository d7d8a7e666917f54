package discord

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client는 Discord 웹훅 클라이언트입니다
type Client struct {
	alertWebhook string
	errorWebhook string
	infoWebhook  string
	http         *resty.Client
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 요청 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// NewClient는 새로운 Discord 클라이언트를 생성합니다.
// 비어 있는 웹훅으로 가는 알림은 전송하지 않습니다.
func NewClient(alertWebhook, errorWebhook, infoWebhook string, opts ...ClientOption) *Client {
	c := &Client{
		alertWebhook: alertWebhook,
		errorWebhook: errorWebhook,
		infoWebhook:  infoWebhook,
		http: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
	}

	// 옵션 적용
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// sendToWebhook은 메시지를 웹훅으로 전송합니다
func (c *Client) sendToWebhook(webhook string, msg WebhookMessage) error {
	if webhook == "" {
		return nil
	}

	resp, err := c.http.R().SetBody(msg).Post(webhook)
	if err != nil {
		return fmt.Errorf("웹훅 전송 실패: %w", err)
	}

	// Discord는 성공 시 204를 반환합니다
	if resp.IsError() {
		return fmt.Errorf("웹훅 응답 오류: status=%d, body=%s", resp.StatusCode(), resp.String())
	}

	return nil
}
