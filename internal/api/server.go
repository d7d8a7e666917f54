// Package api는 출금 상태 머신과 공급자 레지스트리를 HTTP로 노출합니다.
// 인증은 앞단에서 끝난 것으로 보고 처리 주체는 X-Actor-ID 헤더로 받습니다.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/ledger"
	"github.com/arsmhmt/paycrypt-sub000/internal/logger"
	"github.com/arsmhmt/paycrypt-sub000/internal/wallet"
	"github.com/arsmhmt/paycrypt-sub000/internal/withdrawal"
)

// ActorHeader는 인증된 처리 주체 ID를 담는 헤더입니다
const ActorHeader = "X-Actor-ID"

// Server는 HTTP 핸들러 모음입니다
type Server struct {
	machine  *withdrawal.Machine
	ledger   *ledger.Ledger
	registry *wallet.Registry
	sync     *wallet.SyncService
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewServer는 새로운 Server를 생성합니다. gatherer가 nil이면 /metrics를 노출하지 않습니다.
func NewServer(
	machine *withdrawal.Machine,
	l *ledger.Ledger,
	registry *wallet.Registry,
	sync *wallet.SyncService,
	gatherer prometheus.Gatherer,
	log *zap.Logger,
) *Server {
	return &Server{
		machine:  machine,
		ledger:   l,
		registry: registry,
		sync:     sync,
		gatherer: gatherer,
		logger:   logger.OrNop(log),
	}
}

// Router는 chi 라우터를 구성합니다
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", s.handleListWithdrawals)
			r.Post("/", s.handleCreateWithdrawal)
			r.Post("/bulk/approve", s.handleBulkApprove)
			r.Post("/bulk/reject", s.handleBulkReject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWithdrawal)
				r.Post("/approve", s.handleApprove)
				r.Post("/reject", s.handleReject)
				r.Post("/cancel", s.handleCancel)
				r.Post("/process", s.handleProcess)
			})
		})

		r.Post("/executions/{id}/complete", s.handleComplete)
		r.Post("/executions/{id}/fail", s.handleFail)

		r.Get("/clients/{id}/balance", s.handleClientBalance)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleListProviders)
			r.Get("/primary", s.handlePrimaryProvider)
			r.Get("/currency/{currency}", s.handleProviderForCurrency)
			r.Post("/{id}/primary", s.handleSetPrimary)
			r.Post("/{id}/sync", s.handleSyncProvider)
			r.Post("/{id}/test", s.handleTestProvider)
		})
	})

	return r
}
