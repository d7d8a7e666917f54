package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
	"github.com/arsmhmt/paycrypt-sub000/internal/storage"
	"github.com/arsmhmt/paycrypt-sub000/internal/wallet"
	"github.com/arsmhmt/paycrypt-sub000/internal/withdrawal"
)

type createWithdrawalRequest struct {
	ClientID int64                 `json:"client_id"`
	UserID   string                `json:"user_id"`
	Amount   decimal.Decimal       `json:"amount"`
	Currency string                `json:"currency"`
	Network  string                `json:"network"`
	Address  string                `json:"address"`
	Type     domain.WithdrawalType `json:"withdrawal_type"`
}

type approveResponse struct {
	Request *domain.WithdrawalRequest `json:"request"`
	Alert   *domain.FraudAlert        `json:"alert,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// cancelRequest의 client_id는 생략할 수 있습니다. 주면 X-Actor-ID와 같아야 합니다.
type cancelRequest struct {
	ClientID int64 `json:"client_id"`
}

type bulkRequest struct {
	IDs    []int64 `json:"ids"`
	Reason string  `json:"reason"`
}

type completeRequest struct {
	TxReference string `json:"tx_reference"`
}

type balanceResponse struct {
	ClientID   int64             `json:"client_id"`
	Balance    decimal.Decimal   `json:"balance"`
	Commission domain.Commission `json:"commission"`
}

type syncResponse struct {
	ProviderID int64                     `json:"provider_id"`
	Balances   map[string]domain.Balance `json:"balances"`
}

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var body createWithdrawalRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Type == "" {
		body.Type = domain.TypeClientBalance
	}

	req, err := s.machine.Create(r.Context(), withdrawal.CreateRequest{
		ClientID: body.ClientID,
		UserID:   body.UserID,
		Amount:   body.Amount,
		Currency: body.Currency,
		Network:  body.Network,
		Address:  body.Address,
		Type:     body.Type,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.machine.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

// handleListWithdrawals는 client_id, status(쉼표 구분), limit 쿼리로 목록을 조회합니다
func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter storage.WithdrawalFilter

	if v := strings.TrimSpace(q.Get("client_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, domain.NewValidationError("client_id", "잘못된 고객사 ID입니다: %q", v))
			return
		}
		filter.ClientID = id
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		for _, raw := range strings.Split(v, ",") {
			status := domain.WithdrawalStatus(strings.ToUpper(strings.TrimSpace(raw)))
			if !status.IsValid() {
				s.writeError(w, r, domain.NewValidationError("status", "알 수 없는 상태입니다: %q", raw))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.Limit = 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}

	items, err := s.machine.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.WithdrawalRequest{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req, alert, err := s.machine.Approve(r.Context(), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, approveResponse{Request: req, Alert: alert})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body reasonRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := s.machine.Reject(r.Context(), id, actor, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	clientID, err := clientActorID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body cancelRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.ClientID != 0 && body.ClientID != clientID {
		s.writeError(w, r, domain.NewValidationError("client_id", "본문의 고객사 ID가 %s 헤더와 다릅니다", ActorHeader))
		return
	}

	req, err := s.machine.Cancel(r.Context(), id, clientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wd, err := s.machine.BeginProcessing(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, wd)
}

func (s *Server) handleBulkApprove(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body bulkRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.machine.BulkApprove(r.Context(), body.IDs, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBulkReject(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body bulkRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.machine.BulkReject(r.Context(), body.IDs, actor, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body completeRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	wd, err := s.machine.Complete(r.Context(), id, body.TxReference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wd)
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body reasonRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	wd, err := s.machine.Fail(r.Context(), id, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wd)
}

func (s *Server) handleClientBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	commission, err := s.ledger.CalculateCommission(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.ledger.CalculateBalance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{ClientID: id, Balance: balance, Commission: commission})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	providers, err := s.registry.ListProviders(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if providers == nil {
		providers = []*domain.WalletProvider{}
	}
	s.writeJSON(w, http.StatusOK, providers)
}

func (s *Server) handlePrimaryProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.GetPrimaryProvider(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProviderForCurrency(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.GetProviderForCurrency(r.Context(), chi.URLParam(r, "currency"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.registry.SetPrimary(r.Context(), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleSyncProvider는 공급자 에러를 502로 응답합니다. 실패 상태는 이미 공급자에 기록되어 있습니다.
func (s *Server) handleSyncProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	balances, err := s.sync.SyncProviderByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrSyncInProgress):
			s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		case domain.IsProviderError(err):
			s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, syncResponse{ProviderID: id, Balances: balances})
}

func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.sync.TestProvider(r.Context(), id)
	if err != nil && !domain.IsProviderError(err) {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
