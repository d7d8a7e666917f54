package discord

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/notification"
)

func newWebhookServer(t *testing.T, status int) (*httptest.Server, *[]WebhookMessage) {
	t.Helper()
	var received []WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg WebhookMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received = append(received, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestClient_SendFraudWarning(t *testing.T) {
	srv, received := newWebhookServer(t, http.StatusNoContent)
	c := NewClient(srv.URL, "", "")

	req := &domain.WithdrawalRequest{ID: 9, ClientID: 2, Amount: decimal.NewFromInt(500), Currency: "USDT", Address: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"}
	alert := &domain.FraudAlert{
		Level:             domain.RiskHigh,
		Score:             0.75,
		RecommendedAction: "추가 확인",
		Factors:           []domain.RiskFactor{{Name: "velocity", Score: 1, Detail: "1시간 동안 11건"}},
	}

	require.NoError(t, c.SendFraudWarning(req, alert))
	require.Len(t, *received, 1)

	embed := (*received)[0].Embeds[0]
	assert.Contains(t, embed.Title, "#9")
	assert.Equal(t, notification.ColorWarning, embed.Color)
	assert.Contains(t, embed.Description, "HIGH")
}

func TestClient_EmptyWebhookIsSkipped(t *testing.T) {
	c := NewClient("", "", "")
	assert.NoError(t, c.SendError(errors.New("boom")))
	assert.NoError(t, c.SendInfo("hello"))
}

func TestClient_ErrorStatus(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusBadRequest)
	c := NewClient("", srv.URL, "")

	err := c.SendProviderError(&domain.WalletProvider{ID: 1, Name: "kraken", Type: domain.ProviderKraken}, errors.New("EAPI:Invalid key"))
	assert.Error(t, err)
}

func TestEmbed_Truncate(t *testing.T) {
	e := NewEmbed().AddField("긴 값", strings.Repeat("가", 2000), false)
	assert.Equal(t, maxFieldValueLen, len([]rune(e.Fields[0].Value)))

	for i := 0; i < 30; i++ {
		e.AddField("f", "v", true)
	}
	assert.Len(t, e.Fields, maxFields)
}
