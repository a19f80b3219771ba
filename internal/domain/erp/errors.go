package erp

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// ERP Errors
// ---------------------------------------------------------------------------

var (
	// ErrQueueFull is returned when a tenant's operation queue is at capacity.
	// Callers should retry with backoff.
	ErrQueueFull = errors.New("erp: operation queue full")

	// ErrTimeout is returned when an operation exceeded its timeout while executing
	ErrTimeout = errors.New("erp: operation timed out")

	// ErrCancelled is returned when the caller's context was cancelled, or the
	// actor was force-stopped, before the operation finished
	ErrCancelled = errors.New("erp: operation cancelled")

	// ErrUnsupportedErpType is returned when no connector factory is registered
	// for the tenant's configured ERP type
	ErrUnsupportedErpType = errors.New("erp: unsupported ERP type")

	// ErrUnsupportedOperation is returned when the tenant's connector lacks the
	// capability needed for the requested operation
	ErrUnsupportedOperation = errors.New("erp: operation not supported by connector")

	// ErrConnector is the category of failures raised by a connector itself
	ErrConnector = errors.New("erp: connector error")

	// ErrPoolShutdown is returned for operations submitted after shutdown
	ErrPoolShutdown = errors.New("erp: actor pool is shut down")

	// ErrInvalidArgument is returned for malformed operations or requests
	ErrInvalidArgument = errors.New("erp: invalid argument")

	// ErrDuplicateRegistration is returned when a connector factory is already
	// registered for an ERP type
	ErrDuplicateRegistration = errors.New("erp: duplicate connector registration")

	// ErrTenantNotConfigured is returned when a tenant has no ERP configuration
	ErrTenantNotConfigured = errors.New("erp: tenant has no ERP configuration")

	// ErrDuplicateOrder is returned when an order with the same external
	// reference was already submitted for the tenant
	ErrDuplicateOrder = errors.New("erp: order already submitted")

	// ErrSyncRunNotFound is returned when a sync run does not exist
	ErrSyncRunNotFound = errors.New("erp: sync run not found")

	// ErrSnapshotNotFound is returned when a sync run has no archived snapshot
	ErrSnapshotNotFound = errors.New("erp: sync snapshot not found")

	// ErrSyncInProgress is returned when a sync of the same tenant and entity
	// is already running
	ErrSyncInProgress = errors.New("erp: sync already in progress")
)

func unsupportedErpType(value string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedErpType, value)
}

// ---------------------------------------------------------------------------
// ConnectorError
// ---------------------------------------------------------------------------

// ConnectorError wraps a failure raised by a connector (network, auth, remote
// validation, or a recovered panic).
type ConnectorError struct {
	// ErpType is the connector type that failed
	ErpType ErpType
	// Op is the connector method, e.g. "GetArticles"
	Op string
	// Cause is the underlying error
	Cause error
	// Transient marks failures worth retrying (5xx, 429, network errors)
	Transient bool
}

// NewConnectorError creates a new connector error
func NewConnectorError(erpType ErpType, op string, cause error, transient bool) *ConnectorError {
	return &ConnectorError{ErpType: erpType, Op: op, Cause: cause, Transient: transient}
}

// Error implements the error interface
func (e *ConnectorError) Error() string {
	prefix := "erp: connector"
	if e.ErpType != "" {
		prefix = fmt.Sprintf("erp: %s connector", e.ErpType)
	}
	if e.Op != "" {
		prefix += " " + e.Op
	}
	if e.Cause == nil {
		return prefix + " failed"
	}
	return fmt.Sprintf("%s failed: %v", prefix, e.Cause)
}

// Unwrap exposes both the ErrConnector category and the original cause
func (e *ConnectorError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConnector}
	}
	return []error{ErrConnector, e.Cause}
}

// IsTransient reports whether err is a connector failure marked as transient
func IsTransient(err error) bool {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return false
}

// ---------------------------------------------------------------------------
// ErrorKind
// ---------------------------------------------------------------------------

// ErrorKind is a stable, caller-facing classification of an ERP failure
type ErrorKind string

const (
	KindQueueFull            ErrorKind = "QUEUE_FULL"
	KindTimeout              ErrorKind = "TIMEOUT"
	KindCancelled            ErrorKind = "CANCELLED"
	KindUnsupportedErpType   ErrorKind = "UNSUPPORTED_ERP_TYPE"
	KindUnsupportedOperation ErrorKind = "UNSUPPORTED_OPERATION"
	KindConnector            ErrorKind = "CONNECTOR_ERROR"
	KindPoolShutdown         ErrorKind = "POOL_SHUTDOWN"
	KindInvalidArgument      ErrorKind = "INVALID_ARGUMENT"
	KindDuplicate            ErrorKind = "DUPLICATE_REGISTRATION"
	KindTenantNotConfigured  ErrorKind = "TENANT_NOT_CONFIGURED"
	KindDuplicateOrder       ErrorKind = "DUPLICATE_ORDER"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindSyncInProgress       ErrorKind = "SYNC_IN_PROGRESS"
	KindUnknown              ErrorKind = "UNKNOWN"
)

// kindOrder is checked top to bottom; the pool-level kinds come before
// ErrConnector so a connector error wrapping e.g. ErrTimeout keeps the more
// specific kind.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrPoolShutdown, KindPoolShutdown},
	{ErrQueueFull, KindQueueFull},
	{ErrTimeout, KindTimeout},
	{ErrCancelled, KindCancelled},
	{ErrUnsupportedErpType, KindUnsupportedErpType},
	{ErrUnsupportedOperation, KindUnsupportedOperation},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrDuplicateRegistration, KindDuplicate},
	{ErrTenantNotConfigured, KindTenantNotConfigured},
	{ErrDuplicateOrder, KindDuplicateOrder},
	{ErrSyncRunNotFound, KindNotFound},
	{ErrSnapshotNotFound, KindNotFound},
	{ErrSyncInProgress, KindSyncInProgress},
	{ErrConnector, KindConnector},
}

// Kind classifies err. nil maps to the empty kind.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether a caller may retry an operation that failed with
// this kind against the same pool.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindQueueFull, KindTimeout, KindConnector:
		return true
	default:
		return false
	}
}
