package dto

import (
	"net/http"

	"github.com/erp/connector/internal/domain/erp"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// StatusClientClosedRequest is the non-standard status for requests whose
// caller went away before the operation finished
const StatusClientClosedRequest = 499

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the token lacks a scope
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ERP gateway error codes
const (
	ErrCodeQueueFull            = "ERR_ERP_QUEUE_FULL"
	ErrCodeTimeout              = "ERR_ERP_TIMEOUT"
	ErrCodeCancelled            = "ERR_ERP_CANCELLED"
	ErrCodeUnsupportedErpType   = "ERR_ERP_UNSUPPORTED_TYPE"
	ErrCodeUnsupportedOperation = "ERR_ERP_UNSUPPORTED_OPERATION"
	ErrCodeTenantNotConfigured  = "ERR_ERP_TENANT_NOT_CONFIGURED"
	ErrCodePoolShutdown         = "ERR_ERP_SHUTTING_DOWN"
	ErrCodeConnector            = "ERR_ERP_CONNECTOR"
	ErrCodeDuplicateOrder       = "ERR_ERP_DUPLICATE_ORDER"
	ErrCodeSyncInProgress       = "ERR_ERP_SYNC_IN_PROGRESS"
	ErrCodeSchedulerBusy        = "ERR_ERP_SCHEDULER_BUSY"
	ErrCodeSchedulerDisabled    = "ERR_ERP_SCHEDULER_DISABLED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeRateLimited: http.StatusTooManyRequests,

	// Backpressure and shutdown are temporary, the caller retries later
	ErrCodeQueueFull:         http.StatusServiceUnavailable,
	ErrCodePoolShutdown:      http.StatusServiceUnavailable,
	ErrCodeSchedulerBusy:     http.StatusServiceUnavailable,
	ErrCodeSchedulerDisabled: http.StatusServiceUnavailable,

	ErrCodeTimeout:              http.StatusGatewayTimeout,
	ErrCodeCancelled:            StatusClientClosedRequest,
	ErrCodeUnsupportedErpType:   http.StatusUnprocessableEntity,
	ErrCodeUnsupportedOperation: http.StatusUnprocessableEntity,
	ErrCodeTenantNotConfigured:  http.StatusNotFound,
	ErrCodeConnector:            http.StatusBadGateway,
	ErrCodeDuplicateOrder:       http.StatusConflict,
	ErrCodeSyncInProgress:       http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// kindCodes maps ERP error kinds to API error codes
var kindCodes = map[erp.ErrorKind]string{
	erp.KindQueueFull:            ErrCodeQueueFull,
	erp.KindTimeout:              ErrCodeTimeout,
	erp.KindCancelled:            ErrCodeCancelled,
	erp.KindUnsupportedErpType:   ErrCodeUnsupportedErpType,
	erp.KindUnsupportedOperation: ErrCodeUnsupportedOperation,
	erp.KindConnector:            ErrCodeConnector,
	erp.KindPoolShutdown:         ErrCodePoolShutdown,
	erp.KindInvalidArgument:      ErrCodeValidation,
	erp.KindTenantNotConfigured:  ErrCodeTenantNotConfigured,
	erp.KindDuplicateOrder:       ErrCodeDuplicateOrder,
	erp.KindNotFound:             ErrCodeNotFound,
	erp.KindSyncInProgress:       ErrCodeSyncInProgress,
	erp.KindDuplicate:            ErrCodeInternal,
}

// ErpErrorCode classifies err into an API error code and HTTP status
func ErpErrorCode(err error) (code string, status int) {
	kind := erp.Kind(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = ErrCodeInternal
	}
	return code, GetHTTPStatus(code)
}

// NewErpErrorResponse builds the response body for an ERP error. Messages of
// unclassified errors are not exposed.
func NewErpErrorResponse(err error, requestID string) (Response, int) {
	kind := erp.Kind(err)
	code, status := ErpErrorCode(err)

	message := err.Error()
	if code == ErrCodeInternal {
		message = "An unexpected error occurred"
	}

	resp := NewErrorResponseWithRequestID(code, message, requestID)
	if kind != erp.KindUnknown {
		resp.Error.Kind = string(kind)
	}
	resp.Error.Retryable = kind.Retryable()
	return resp, status
}
