package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

func TestClient_Classify(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind error
	}{
		{"성공", http.StatusOK, nil},
		{"생성됨", http.StatusCreated, nil},
		{"인증 실패", http.StatusUnauthorized, domain.ErrProviderAuth},
		{"권한 없음", http.StatusForbidden, domain.ErrProviderAuth},
		{"잘못된 요청", http.StatusBadRequest, domain.ErrProviderResponse},
		{"서버 오류", http.StatusBadGateway, domain.ErrProviderResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(Config{Provider: "test", BaseURL: srv.URL + "/"})
			resp, err := c.R(context.Background()).Get("/ping")
			got := c.Classify("ping", resp, err)

			if tt.wantKind == nil {
				assert.NoError(t, got)
				return
			}
			assert.True(t, errors.Is(got, tt.wantKind), "err=%v", got)
		})
	}
}

func TestClient_TransportErrorsAreTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{Provider: "slow", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	resp, err := c.R(context.Background()).Get("/")
	assert.True(t, errors.Is(c.Classify("get", resp, err), domain.ErrProviderTimeout))

	closed := New(Config{Provider: "down", BaseURL: "http://127.0.0.1:1"})
	resp, err = closed.R(context.Background()).Get("/")
	assert.True(t, errors.Is(closed.Classify("get", resp, err), domain.ErrProviderTimeout))
}

func TestClient_Do_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	c := New(Config{Provider: "test", BaseURL: srv.URL})

	var out struct {
		Value int `json:"value"`
	}
	resp, err := c.R(context.Background()).Get("/")
	require.NoError(t, c.Do("get", resp, err, &out))
	assert.Equal(t, 42, out.Value)

	var wrong []string
	resp, err = c.R(context.Background()).Get("/")
	assert.True(t, errors.Is(c.Do("get", resp, err, &wrong), domain.ErrProviderResponse))
}

func TestClient_Classify_LogsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.DebugLevel)
	c := New(Config{Provider: "kraken-main", BaseURL: srv.URL, Logger: zap.New(core)})

	resp, err := c.R(context.Background()).Get("/ok")
	require.NoError(t, c.Classify("ping", resp, err))
	assert.Zero(t, logs.Len())

	resp, err = c.R(context.Background()).Get("/private")
	require.Error(t, c.Classify("GetBalances", resp, err))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "kraken-main", fields["provider"])
	assert.Equal(t, "GetBalances", fields["op"])
	assert.EqualValues(t, http.StatusUnauthorized, fields["status"])
}
