package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
)

type detailResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// statusFor maps a service error to its HTTP status. Zero means the error
// is not meant for clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrorDecrypt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrorInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrorInactiveUser),
		errors.Is(err, common.ErrorWrongPassword),
		errors.Is(err, common.ErrorSamePassword),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusBadRequest
	}
	return 0
}

func detailOf(err error, fallback string) string {
	var d *common.DetailError
	if errors.As(err, &d) {
		return d.Detail
	}
	return fallback
}

// writeError renders err as {"detail": ...}. Unmapped errors are logged and
// reported as a bare internal error.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == 0 {
		s.logger.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeDetail(w, status, detailOf(err, http.StatusText(status)))
}
