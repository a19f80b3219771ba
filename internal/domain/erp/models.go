package erp

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// OrderStatus represents the status of an order in the ERP
// ---------------------------------------------------------------------------

// OrderStatus represents the status of an order in the ERP
type OrderStatus string

const (
	// OrderStatusOpen indicates the order was entered but not confirmed
	OrderStatusOpen OrderStatus = "OPEN"
	// OrderStatusConfirmed indicates the order was confirmed by the ERP
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusShipped indicates the goods were shipped
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusInvoiced indicates the order was invoiced
	OrderStatusInvoiced OrderStatus = "INVOICED"
	// OrderStatusCancelled indicates the order was cancelled
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid returns true if the status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusInvoiced, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsFinal returns true if no further transitions are possible
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusInvoiced || s == OrderStatusCancelled
}

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// Article is an ERP article (item master record)
type Article struct {
	Number      string          `json:"number"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Stock       decimal.Decimal `json:"stock"`
	Active      bool            `json:"active"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Customer is an ERP customer (debtor) record
type Customer struct {
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	VatID     string    `json:"vat_id,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Order is an ERP sales order
type Order struct {
	Number         string          `json:"number"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	CustomerNumber string          `json:"customer_number"`
	Status         OrderStatus     `json:"status"`
	Lines          []OrderLine     `json:"lines"`
	Total          decimal.Decimal `json:"total"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderLine is a single position of an order
type OrderLine struct {
	ArticleNumber string          `json:"article_number" validate:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity * unit price
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// OrderTotal sums the line totals
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

const (
	// DefaultPageSize is used when a query does not specify a page size
	DefaultPageSize = 100
	// MaxPageSize caps the page size of any query
	MaxPageSize = 500
)

// PageQuery holds paging and delta filters shared by all list queries
type PageQuery struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	// ModifiedSince restricts results to records changed after this instant (delta sync)
	ModifiedSince *time.Time `json:"modified_since,omitempty"`
}

// Normalize fills in paging defaults
func (q *PageQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
}

// ArticleQuery filters articles
type ArticleQuery struct {
	PageQuery
	Numbers []string `json:"numbers,omitempty"`
}

// CustomerQuery filters customers
type CustomerQuery struct {
	PageQuery
	Numbers []string `json:"numbers,omitempty"`
}

// OrderQuery filters orders
type OrderQuery struct {
	PageQuery
	CustomerNumber string       `json:"customer_number,omitempty"`
	Status         *OrderStatus `json:"status,omitempty"`
}

// Page is one page of results returned by a connector
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// CreateOrderRequest creates a sales order in the ERP
type CreateOrderRequest struct {
	// ExternalRef is the caller's order reference, used for idempotency
	ExternalRef    string      `json:"external_ref" validate:"required,max=64"`
	CustomerNumber string      `json:"customer_number" validate:"required,max=32"`
	Lines          []OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// UpdateOrderRequest changes status and/or lines of an existing order
type UpdateOrderRequest struct {
	Number string      `json:"number" validate:"required"`
	Status OrderStatus `json:"status,omitempty"`
	Lines  []OrderLine `json:"lines,omitempty" validate:"omitempty,dive"`
}

// ConnectionResult is the outcome of a connector health probe
type ConnectionResult struct {
	Success       bool          `json:"success"`
	ServerVersion string        `json:"server_version,omitempty"`
	Latency       time.Duration `json:"latency"`
	Message       string        `json:"message,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}
