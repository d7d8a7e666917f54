package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/notification"
)

const footer = "PayCrypt Gateway 🛡️"

var _ notification.Notifier = (*Client)(nil)

// SendFraudWarning은 위험 평가 결과를 전송합니다
func (c *Client) SendFraudWarning(req *domain.WithdrawalRequest, alert *domain.FraudAlert) error {
	embed := NewEmbed().
		SetTitle(fmt.Sprintf("출금 위험 경고: 요청 #%d", req.ID)).
		SetDescription(fmt.Sprintf("**등급**: %s\n**점수**: %.2f\n**권장 조치**: %s",
			alert.Level, alert.Score, alert.RecommendedAction)).
		SetColor(notification.GetColorForRisk(alert.Level)).
		AddField("고객사", fmt.Sprintf("%d", req.ClientID), true).
		AddField("금액", fmt.Sprintf("%s %s", req.Amount.String(), req.Currency), true).
		AddField("주소", req.Address, false)

	var factors []string
	for _, f := range alert.Factors {
		factors = append(factors, fmt.Sprintf("%s: %.2f (%s)", f.Name, f.Score, f.Detail))
	}
	if len(factors) > 0 {
		embed.AddField("요인", strings.Join(factors, "\n"), false)
	}

	embed.SetFooter(footer).SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.alertWebhook, msg)
}

// SendProviderError는 공급자 동기화 실패를 전송합니다
func (c *Client) SendProviderError(provider *domain.WalletProvider, err error) error {
	embed := NewEmbed().
		SetTitle(fmt.Sprintf("공급자 동기화 실패: %s", provider.Name)).
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(notification.ColorError).
		AddField("유형", string(provider.Type), true).
		AddField("ID", fmt.Sprintf("%d", provider.ID), true).
		SetFooter(footer).
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.errorWebhook, msg)
}

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(err error) error {
	embed := NewEmbed().
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(notification.ColorError).
		SetFooter(footer).
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.errorWebhook, msg)
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(message string) error {
	embed := NewEmbed().
		SetDescription(message).
		SetColor(notification.ColorInfo).
		SetFooter(footer).
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.infoWebhook, msg)
}
