package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	agencydomain "github.com/voyagekit/tariff/internal/agency/domain"
	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	evaluationdomain "github.com/voyagekit/tariff/internal/evaluation/domain"
	overridedomain "github.com/voyagekit/tariff/internal/override/domain"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.JSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, overridedomain.ErrOverrideNotAllowed),
		errors.Is(err, overridedomain.ErrOverrideExceedsLimit):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: err.Error(),
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, ruledomain.ErrDuplicateRuleName),
		errors.Is(err, ruledomain.ErrRuleRetired),
		errors.Is(err, agencydomain.ErrDuplicateCode),
		errors.Is(err, auditdomain.ErrAlreadyOverridden),
		errors.Is(err, overridedomain.ErrOverridePending),
		errors.Is(err, overridedomain.ErrInvalidOverrideState):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, evaluationdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limit exceeded",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isRuleValidationError(err),
		isAuditValidationError(err),
		isEvaluationValidationError(err),
		isOverrideValidationError(err),
		isAgencyValidationError(err):
		return true
	default:
		return false
	}
}

func isRuleValidationError(err error) bool {
	switch {
	case errors.Is(err, ruledomain.ErrInvalidAgency),
		errors.Is(err, ruledomain.ErrInvalidRuleName),
		errors.Is(err, ruledomain.ErrInvalidRuleType),
		errors.Is(err, ruledomain.ErrInvalidCalculationType),
		errors.Is(err, ruledomain.ErrInvalidValue),
		errors.Is(err, ruledomain.ErrInvalidOverrideLimit),
		errors.Is(err, ruledomain.ErrInvalidDateRange),
		errors.Is(err, ruledomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidAgency),
		errors.Is(err, auditdomain.ErrInvalidID),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isEvaluationValidationError(err error) bool {
	switch {
	case errors.Is(err, evaluationdomain.ErrInvalidAgency),
		errors.Is(err, evaluationdomain.ErrInvalidAmount),
		errors.Is(err, evaluationdomain.ErrInvalidAppliedTo),
		errors.Is(err, evaluationdomain.ErrInvalidCurrency):
		return true
	default:
		return false
	}
}

func isOverrideValidationError(err error) bool {
	switch {
	case errors.Is(err, overridedomain.ErrInvalidAgency),
		errors.Is(err, overridedomain.ErrInvalidID),
		errors.Is(err, overridedomain.ErrInvalidAmount),
		errors.Is(err, overridedomain.ErrInvalidRequester),
		errors.Is(err, overridedomain.ErrInvalidReason),
		errors.Is(err, overridedomain.ErrInvalidDecision):
		return true
	default:
		return false
	}
}

func isAgencyValidationError(err error) bool {
	switch {
	case errors.Is(err, agencydomain.ErrInvalidName),
		errors.Is(err, agencydomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ruledomain.ErrNotFound),
		errors.Is(err, auditdomain.ErrNotFound),
		errors.Is(err, overridedomain.ErrApplicationNotFound),
		errors.Is(err, overridedomain.ErrRequestNotFound),
		errors.Is(err, agencydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "invalid_request" {
		return "request"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
