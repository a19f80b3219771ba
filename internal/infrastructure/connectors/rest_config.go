package connectors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/jmespath/go-jmespath"
)

// Default option values of the generic REST connector
const (
	DefaultRestTimeout       = 30 * time.Second
	DefaultRestHealthPath    = "/health"
	DefaultRestPageParam     = "page"
	DefaultRestPageSizeParam = "page_size"
	DefaultRestSinceParam    = "modified_since"
	DefaultRestItemsExpr     = "items"
	DefaultRestHasMoreExpr   = "has_more"
)

// ErrRestConfigMissingBaseURL is returned when a REST tenant has no base URL
var ErrRestConfigMissingBaseURL = errors.New("rest: base URL is required")

// entityFields lists the mappable fields of each entity with their default
// expressions, which match the connector's own JSON names.
var entityFields = map[string][]string{
	"articles":  {"number", "description", "unit", "price", "stock", "active", "updated_at"},
	"customers": {"number", "name", "email", "vat_id", "active", "updated_at"},
	"orders":    {"number", "external_ref", "customer_number", "status", "total", "lines", "created_at", "updated_at"},
	"lines":     {"article_number", "quantity", "unit_price"},
}

// EntityMapping locates one entity's records inside arbitrary JSON responses
type EntityMapping struct {
	Path    string
	Items   *jmespath.JMESPath
	HasMore *jmespath.JMESPath
	Fields  map[string]*jmespath.JMESPath
}

// RestConfig configures the generic REST connector.
//
// Everything beyond the credentials comes from the tenant options:
//
//	capabilities          articles,customers,orders (default)
//	health.path           /health
//	page_param            page
//	page_size_param       page_size
//	since_param           modified_since
//	<entity>.path         /<entity>
//	<entity>.items        JMESPath to the record array (default "items")
//	<entity>.has_more     JMESPath to the continuation flag (default "has_more")
//	<entity>.<field>      JMESPath to a field inside a record
//
// where <entity> is articles, customers, orders or lines (order lines).
type RestConfig struct {
	BaseURL       string
	Token         string
	Username      string
	Password      string
	Timeout       time.Duration
	Capabilities  erp.Capabilities
	HealthPath    string
	PageParam     string
	PageSizeParam string
	SinceParam    string
	Mappings      map[string]*EntityMapping
}

// NewRestConfig builds and compiles the REST configuration of a tenant
func NewRestConfig(cfg *erp.TenantErpConfig) (*RestConfig, error) {
	if cfg.BaseURL == "" {
		return nil, ErrRestConfigMissingBaseURL
	}

	c := &RestConfig{
		BaseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		Token:         cfg.APIKey,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Timeout:       cfg.Timeout,
		HealthPath:    cfg.Option("health.path", DefaultRestHealthPath),
		PageParam:     cfg.Option("page_param", DefaultRestPageParam),
		PageSizeParam: cfg.Option("page_size_param", DefaultRestPageSizeParam),
		SinceParam:    cfg.Option("since_param", DefaultRestSinceParam),
		Mappings:      make(map[string]*EntityMapping, len(entityFields)),
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRestTimeout
	}

	caps, err := parseCapabilities(cfg.Option("capabilities", "articles,customers,orders"))
	if err != nil {
		return nil, err
	}
	c.Capabilities = caps

	for entity, fields := range entityFields {
		m, err := compileMapping(cfg, entity, fields)
		if err != nil {
			return nil, err
		}
		c.Mappings[entity] = m
	}
	return c, nil
}

func compileMapping(cfg *erp.TenantErpConfig, entity string, fields []string) (*EntityMapping, error) {
	var err error
	m := &EntityMapping{
		Path:   cfg.Option(entity+".path", "/"+entity),
		Fields: make(map[string]*jmespath.JMESPath, len(fields)),
	}
	if m.Items, err = compileExpr(entity+".items", cfg.Option(entity+".items", DefaultRestItemsExpr)); err != nil {
		return nil, err
	}
	if m.HasMore, err = compileExpr(entity+".has_more", cfg.Option(entity+".has_more", DefaultRestHasMoreExpr)); err != nil {
		return nil, err
	}
	for _, f := range fields {
		key := entity + "." + f
		if m.Fields[f], err = compileExpr(key, cfg.Option(key, f)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func compileExpr(key, expr string) (*jmespath.JMESPath, error) {
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: option %s: invalid expression %q: %v", erp.ErrInvalidArgument, key, expr, err)
	}
	return compiled, nil
}

func parseCapabilities(s string) (erp.Capabilities, error) {
	var caps erp.Capabilities
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "":
		case "articles":
			caps |= erp.CapabilityArticles
		case "customers":
			caps |= erp.CapabilityCustomers
		case "orders":
			caps |= erp.CapabilityOrders
		case "batch":
			caps |= erp.CapabilityBatch
		case "real_time":
			caps |= erp.CapabilityRealTime
		default:
			return 0, fmt.Errorf("%w: unknown capability %q", erp.ErrInvalidArgument, part)
		}
	}
	return caps, nil
}
