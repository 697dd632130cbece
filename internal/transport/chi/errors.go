package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/internal/domain"
	logpkg "github.com/kailas-cloud/occdex/internal/logger"
)

// ErrorCode is the machine-readable error identifier returned by the API.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeNotFound         ErrorCode = "not_found"
	CodeVersionConflict  ErrorCode = "version_conflict"
	CodeTooManyItems     ErrorCode = "too_many_items"
	CodeIndexNotFound    ErrorCode = "index_not_found"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// conflictResponse echoes the token the rejected write expected.
type conflictResponse struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	ID          string    `json:"id"`
	SeqNo       int64     `json:"seq_no"`
	PrimaryTerm int64     `json:"primary_term"`
}

// safeDomainMessage returns an error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	// Validation messages are built from request data only.
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrTooManyItems) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrVersionConflict,
		occdex.ErrIndexNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// versionConflictHandler handles ErrVersionConflict and echoes the expected token.
func versionConflictHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrVersionConflict) {
		return false
	}
	var vce *domain.VersionConflictError
	if errors.As(err, &vce) {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Code:        CodeVersionConflict,
			Message:     msg,
			ID:          vce.ID,
			SeqNo:       vce.SeqNo,
			PrimaryTerm: vce.PrimaryTerm,
		})
		return true
	}
	writeError(w, http.StatusConflict, CodeVersionConflict, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContextOr(r.Context(), s.logger)
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
