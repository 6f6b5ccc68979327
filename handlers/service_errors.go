package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/services"
	"github.com/upb/llm-failover-router/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	status, message := http.StatusInternalServerError, "An unexpected error occurred"

	switch {
	case services.IsNotFoundError(err):
		status, message = http.StatusNotFound, domainMessage(err)
	case services.IsValidationError(err):
		status, message = http.StatusBadRequest, domainMessage(err)
	case services.IsUnauthorizedError(err):
		status, message = http.StatusUnauthorized, domainMessage(err)
	case services.IsRateLimitError(err):
		status, message = http.StatusTooManyRequests, domainMessage(err)
	case services.IsConfigurationError(err):
		logger.Warn("service not configured", zap.Error(err))
		status, message = http.StatusServiceUnavailable, domainMessage(err)
	case services.IsExternalError(err):
		logger.Warn("upstream error", zap.Error(err))
		status, message = http.StatusBadGateway, domainMessage(err)
	case services.IsInternalError(err):
		// details may carry internals
		logger.Error("internal server error", zap.Error(err))
		status, message, details = http.StatusInternalServerError, "An internal error occurred", nil
	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		details = nil
	}

	if len(details) == 0 {
		details = nil
	}
	if werr := utils.WriteError(w, status, message, details); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// domainMessage returns the message without the type prefix or wrapped cause.
func domainMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if werr := utils.WriteBadRequest(w, "Validation failed", details); werr != nil {
			logger.Error("failed to write validation error response", zap.Error(werr))
		}
		return
	}

	if werr := utils.WriteBadRequest(w, err.Error(), nil); werr != nil {
		logger.Error("failed to write validation error response", zap.Error(werr))
	}
}
