package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// ListQuery holds the query string of the article, customer and order lists
type ListQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=500"`
	// ModifiedSince is RFC 3339
	ModifiedSince  string   `form:"modified_since"`
	Numbers        []string `form:"number" binding:"omitempty,max=100,dive,max=32"`
	CustomerNumber string   `form:"customer_number" binding:"omitempty,max=32"`
	Status         string   `form:"status" binding:"omitempty,oneof=OPEN CONFIRMED SHIPPED INVOICED CANCELLED"`
}

// PageQuery converts the paging part of the query
func (q ListQuery) PageQuery() (erp.PageQuery, error) {
	pq := erp.PageQuery{Page: q.Page, PageSize: q.PageSize}
	if q.ModifiedSince != "" {
		since, err := time.Parse(time.RFC3339, q.ModifiedSince)
		if err != nil {
			return pq, fmt.Errorf("%w: modified_since must be RFC 3339", erp.ErrInvalidArgument)
		}
		pq.ModifiedSince = &since
	}
	return pq, nil
}

// ArticleQuery converts to the article filter
func (q ListQuery) ArticleQuery() (erp.ArticleQuery, error) {
	pq, err := q.PageQuery()
	return erp.ArticleQuery{PageQuery: pq, Numbers: q.Numbers}, err
}

// CustomerQuery converts to the customer filter
func (q ListQuery) CustomerQuery() (erp.CustomerQuery, error) {
	pq, err := q.PageQuery()
	return erp.CustomerQuery{PageQuery: pq, Numbers: q.Numbers}, err
}

// OrderQuery converts to the order filter
func (q ListQuery) OrderQuery() (erp.OrderQuery, error) {
	pq, err := q.PageQuery()
	oq := erp.OrderQuery{PageQuery: pq, CustomerNumber: q.CustomerNumber}
	if q.Status != "" {
		status := erp.OrderStatus(q.Status)
		oq.Status = &status
	}
	return oq, err
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderLineRequest is one order position
type OrderLineRequest struct {
	ArticleNumber string          `json:"article_number" binding:"required,max=32"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// CreateOrderRequest is the body of POST /orders
type CreateOrderRequest struct {
	ExternalRef    string             `json:"external_ref" binding:"required,max=64"`
	CustomerNumber string             `json:"customer_number" binding:"required,max=32"`
	Lines          []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToDomain converts to the domain command
func (r CreateOrderRequest) ToDomain() *erp.CreateOrderRequest {
	return &erp.CreateOrderRequest{
		ExternalRef:    strings.TrimSpace(r.ExternalRef),
		CustomerNumber: strings.TrimSpace(r.CustomerNumber),
		Lines:          toOrderLines(r.Lines),
	}
}

// UpdateOrderRequest is the body of PUT /orders/:number
type UpdateOrderRequest struct {
	Status string             `json:"status" binding:"omitempty,oneof=OPEN CONFIRMED SHIPPED INVOICED CANCELLED"`
	Lines  []OrderLineRequest `json:"lines" binding:"omitempty,dive"`
}

// ToDomain converts to the domain command for the order number
func (r UpdateOrderRequest) ToDomain(number string) *erp.UpdateOrderRequest {
	return &erp.UpdateOrderRequest{
		Number: number,
		Status: erp.OrderStatus(r.Status),
		Lines:  toOrderLines(r.Lines),
	}
}

func toOrderLines(lines []OrderLineRequest) []erp.OrderLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]erp.OrderLine, len(lines))
	for i, l := range lines {
		out[i] = erp.OrderLine{
			ArticleNumber: strings.TrimSpace(l.ArticleNumber),
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Tenant connector
// ---------------------------------------------------------------------------

// CapabilitiesResponse describes the tenant's connector
type CapabilitiesResponse struct {
	TenantID     string   `json:"tenant_id"`
	ErpType      string   `json:"erp_type"`
	DisplayName  string   `json:"display_name"`
	Capabilities []string `json:"capabilities"`
}

// NewCapabilitiesResponse builds the response
func NewCapabilitiesResponse(tenantID uuid.UUID, erpType erp.ErpType, caps erp.Capabilities) CapabilitiesResponse {
	return CapabilitiesResponse{
		TenantID:     tenantID.String(),
		ErpType:      erpType.String(),
		DisplayName:  erpType.DisplayName(),
		Capabilities: caps.Names(),
	}
}

// ConnectionResponse is the outcome of a connection probe
type ConnectionResponse struct {
	Success       bool      `json:"success"`
	ServerVersion string    `json:"server_version,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
	Message       string    `json:"message,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// NewConnectionResponse converts a connection result
func NewConnectionResponse(r *erp.ConnectionResult) ConnectionResponse {
	return ConnectionResponse{
		Success:       r.Success,
		ServerVersion: r.ServerVersion,
		LatencyMs:     r.Latency.Milliseconds(),
		Message:       r.Message,
		CheckedAt:     r.CheckedAt,
	}
}

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

// SyncRunResponse is a sync run
type SyncRunResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	ErpType     string     `json:"erp_type"`
	Entity      string     `json:"entity"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Since       *time.Time `json:"since,omitempty"`
	Pages       int        `json:"pages"`
	Records     int        `json:"records"`
	Error       string     `json:"error,omitempty"`
	SnapshotKey string     `json:"snapshot_key,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
}

// NewSyncRunResponse converts a sync run
func NewSyncRunResponse(run *erp.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:          run.ID.String(),
		TenantID:    run.TenantID.String(),
		ErpType:     run.ErpType.String(),
		Entity:      string(run.Entity),
		Kind:        string(run.Kind),
		Status:      string(run.Status),
		Since:       run.Since,
		Pages:       run.Pages,
		Records:     run.Records,
		Error:       run.Error,
		SnapshotKey: run.SnapshotKey,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		DurationMs:  run.Duration().Milliseconds(),
	}
}

// NewSyncRunResponses converts a list of runs
func NewSyncRunResponses(runs []erp.SyncRun) []SyncRunResponse {
	out := make([]SyncRunResponse, len(runs))
	for i := range runs {
		out[i] = NewSyncRunResponse(&runs[i])
	}
	return out
}

// SnapshotLinkResponse points at a presigned snapshot download
type SnapshotLinkResponse struct {
	RunID     string    `json:"run_id"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SyncRequest is the query of POST /sync/:entity
type SyncRequest struct {
	Kind string `form:"kind" binding:"omitempty,oneof=FULL DELTA full delta"`
	// Async queues the sync on the scheduler instead of waiting for it
	Async bool `form:"async"`
}

// SyncKind returns the requested kind, DELTA when none was given
func (r SyncRequest) SyncKind() erp.SyncKind {
	if r.Kind == "" {
		return erp.SyncKindDelta
	}
	return erp.SyncKind(strings.ToUpper(r.Kind))
}

// SyncJobResponse is a scheduled sync job
type SyncJobResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Kind        string     `json:"kind"`
	Entities    []string   `json:"entities"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RunIDs      []string   `json:"run_ids,omitempty"`
	Skipped     []string   `json:"skipped,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ParseSyncEntity parses the :entity path segment case-insensitively
func ParseSyncEntity(s string) (erp.SyncEntity, error) {
	entity := erp.SyncEntity(strings.ToUpper(s))
	if !entity.IsValid() {
		return "", fmt.Errorf("%w: unknown sync entity %q", erp.ErrInvalidArgument, s)
	}
	return entity, nil
}
