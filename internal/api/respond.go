package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arsmhmt/paycrypt-sub000/internal/domain"
)

// errorResponse는 에러 응답 본문입니다
type errorResponse struct {
	Error    string             `json:"error"`
	Field    string             `json:"field,omitempty"`
	From     string             `json:"from,omitempty"`
	To       string             `json:"to,omitempty"`
	Conflict bool               `json:"conflict,omitempty"`
	Alert    *domain.FraudAlert `json:"alert,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("응답 인코딩 실패", zap.Error(err))
	}
}

// writeError는 에러 종류에 맞는 상태 코드로 응답합니다
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var validation *domain.ValidationError
	var transition *domain.InvalidStateTransitionError
	var block *domain.FraudBlockError
	switch {
	case errors.As(err, &validation):
		resp.Field = validation.Field
	case errors.As(err, &transition):
		resp.From = string(transition.From)
		resp.To = string(transition.To)
		resp.Conflict = transition.Conflict
	case errors.As(err, &block):
		alert := block.Alert
		resp.Alert = &alert
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("요청 처리 실패",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = http.StatusText(status)
	}
	s.writeJSON(w, status, resp)
}

// statusFor는 도메인 에러를 HTTP 상태 코드로 변환합니다
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFraudBlocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "요청 본문을 해석할 수 없습니다: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "잘못된 ID입니다: %q", raw)
	}
	return id, nil
}

func actorID(r *http.Request) (string, error) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		return "", domain.NewValidationError("actor_id", "%s 헤더가 필요합니다", ActorHeader)
	}
	return actor, nil
}

// clientActorID는 고객사가 처리 주체인 요청에서 X-Actor-ID를 고객사 ID로 해석합니다
func clientActorID(r *http.Request) (int64, error) {
	actor, err := actorID(r)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(actor, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("actor_id", "%s 헤더가 고객사 ID가 아닙니다: %q", ActorHeader, actor)
	}
	return id, nil
}
