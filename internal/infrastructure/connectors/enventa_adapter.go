package connectors

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/erp/connector/internal/domain/erp"
)

const enventaAPIPrefix = "/api/v1"

// EnventaConnector implements erp.Connector against the enventa Trade
// connector service. The service serializes access to the ERP's COM
// interface, which is why every tenant's calls go through one actor.
type EnventaConnector struct {
	config     *EnventaConfig
	client     *jsonClient
	minVersion *semver.Constraints
}

// NewEnventaConnector creates a new enventa connector
func NewEnventaConnector(config *EnventaConfig) (*EnventaConnector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	constraint, err := semver.NewConstraint(config.MinServerVersion)
	if err != nil {
		return nil, errors.Join(ErrEnventaInvalidVersionRule, err)
	}

	return &EnventaConnector{
		config: config,
		client: &jsonClient{
			erpType:    erp.ErpTypeEnventa,
			httpClient: &http.Client{Timeout: config.Timeout},
		},
		minVersion: constraint,
	}, nil
}

// NewEnventaFactory returns the registry factory for enventa tenants
func NewEnventaFactory() erp.ConnectorFactory {
	return func(_ context.Context, _ erp.TenantContext, cfg *erp.TenantErpConfig) (erp.Connector, error) {
		return NewEnventaConnector(NewEnventaConfig(cfg))
	}
}

// ErpType returns the ERP type this connector talks to
func (c *EnventaConnector) ErpType() erp.ErpType {
	return erp.ErpTypeEnventa
}

// Capabilities returns the operations this connector supports
func (c *EnventaConnector) Capabilities() erp.Capabilities {
	// changes made in enventa are visible immediately through the service
	return erp.CapabilitiesAll
}

// ---------------------------------------------------------------------------
// Read Operations
// ---------------------------------------------------------------------------

// GetArticles lists articles
func (c *EnventaConnector) GetArticles(ctx context.Context, query erp.ArticleQuery) (*erp.Page[erp.Article], error) {
	query.Normalize()
	params := pageParams(query.PageQuery)
	if len(query.Numbers) > 0 {
		params.Set("nummern", strings.Join(query.Numbers, ","))
	}

	var resp EnventaListResponse[EnventaArtikel]
	if err := c.get(ctx, "GetArticles", "/artikel", params, &resp); err != nil {
		return nil, err
	}

	page := &erp.Page[erp.Article]{
		Items:    make([]erp.Article, 0, len(resp.Daten)),
		Page:     query.Page,
		PageSize: query.PageSize,
		HasMore:  resp.Weitere,
	}
	for _, a := range resp.Daten {
		page.Items = append(page.Items, erp.Article{
			Number:      a.ArtikelNr,
			Description: a.Bezeichnung,
			Unit:        a.Einheit,
			Price:       a.VKPreis,
			Stock:       a.Bestand,
			Active:      !a.Gesperrt,
			UpdatedAt:   a.GeaendertAm.Time,
		})
	}
	return page, nil
}

// GetCustomers lists customers
func (c *EnventaConnector) GetCustomers(ctx context.Context, query erp.CustomerQuery) (*erp.Page[erp.Customer], error) {
	query.Normalize()
	params := pageParams(query.PageQuery)
	if len(query.Numbers) > 0 {
		params.Set("nummern", strings.Join(query.Numbers, ","))
	}

	var resp EnventaListResponse[EnventaKunde]
	if err := c.get(ctx, "GetCustomers", "/kunden", params, &resp); err != nil {
		return nil, err
	}

	page := &erp.Page[erp.Customer]{
		Items:    make([]erp.Customer, 0, len(resp.Daten)),
		Page:     query.Page,
		PageSize: query.PageSize,
		HasMore:  resp.Weitere,
	}
	for _, k := range resp.Daten {
		name := strings.TrimSpace(k.Name1 + " " + k.Name2)
		page.Items = append(page.Items, erp.Customer{
			Number:    k.KundenNr,
			Name:      name,
			Email:     k.EMail,
			VatID:     k.UStIdNr,
			Active:    !k.Gesperrt,
			UpdatedAt: k.GeaendertAm.Time,
		})
	}
	return page, nil
}

// GetOrders lists orders
func (c *EnventaConnector) GetOrders(ctx context.Context, query erp.OrderQuery) (*erp.Page[erp.Order], error) {
	query.Normalize()
	params := pageParams(query.PageQuery)
	if query.CustomerNumber != "" {
		params.Set("kundenNr", query.CustomerNumber)
	}
	if query.Status != nil {
		params.Set("status", toEnventaStatus(*query.Status))
	}

	var resp EnventaListResponse[EnventaAuftrag]
	if err := c.get(ctx, "GetOrders", "/auftraege", params, &resp); err != nil {
		return nil, err
	}

	page := &erp.Page[erp.Order]{
		Items:    make([]erp.Order, 0, len(resp.Daten)),
		Page:     query.Page,
		PageSize: query.PageSize,
		HasMore:  resp.Weitere,
	}
	for i := range resp.Daten {
		page.Items = append(page.Items, convertEnventaAuftrag(&resp.Daten[i]))
	}
	return page, nil
}

// ---------------------------------------------------------------------------
// Write Operations
// ---------------------------------------------------------------------------

// CreateOrder creates an order. enventa rejects a second order with the same
// Referenz with 409, in which case the existing order is returned.
func (c *EnventaConnector) CreateOrder(ctx context.Context, req *erp.CreateOrderRequest) (*erp.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := EnventaAuftragAnlage{
		Mandant:    c.config.Mandant,
		Referenz:   req.ExternalRef,
		KundenNr:   req.CustomerNumber,
		Positionen: toEnventaPositionen(req.Lines),
	}

	body, err := c.client.do(ctx, "CreateOrder", apiRequest{
		method:  http.MethodPost,
		url:     c.endpoint("/auftraege", nil),
		headers: c.headers(),
		body:    payload,
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return c.findOrderByReference(ctx, req.ExternalRef)
		}
		return nil, err
	}

	var auftrag EnventaAuftrag
	if err := c.client.decode("CreateOrder", body, &auftrag); err != nil {
		return nil, err
	}
	order := convertEnventaAuftrag(&auftrag)
	return &order, nil
}

// UpdateOrder changes status and/or lines of an order
func (c *EnventaConnector) UpdateOrder(ctx context.Context, req *erp.UpdateOrderRequest) (*erp.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := EnventaAuftragAenderung{Positionen: toEnventaPositionen(req.Lines)}
	if req.Status != "" {
		payload.Status = toEnventaStatus(req.Status)
	}

	body, err := c.client.do(ctx, "UpdateOrder", apiRequest{
		method:  http.MethodPatch,
		url:     c.endpoint("/auftraege/"+url.PathEscape(req.Number), nil),
		headers: c.headers(),
		body:    payload,
	})
	if err != nil {
		return nil, err
	}

	var auftrag EnventaAuftrag
	if err := c.client.decode("UpdateOrder", body, &auftrag); err != nil {
		return nil, err
	}
	order := convertEnventaAuftrag(&auftrag)
	return &order, nil
}

func (c *EnventaConnector) findOrderByReference(ctx context.Context, ref string) (*erp.Order, error) {
	params := url.Values{}
	params.Set("referenz", ref)

	var resp EnventaListResponse[EnventaAuftrag]
	if err := c.get(ctx, "CreateOrder", "/auftraege", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Daten) == 0 {
		return nil, erp.NewConnectorError(erp.ErpTypeEnventa, "CreateOrder",
			fmt.Errorf("order with reference %q conflicted but cannot be found", ref), true)
	}
	order := convertEnventaAuftrag(&resp.Daten[0])
	return &order, nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// TestConnection reads the service version and checks it against MinServerVersion
func (c *EnventaConnector) TestConnection(ctx context.Context) (*erp.ConnectionResult, error) {
	start := time.Now()
	result := &erp.ConnectionResult{CheckedAt: start}

	var v EnventaVersion
	err := c.get(ctx, "TestConnection", "/system/version", nil, &v)
	result.Latency = time.Since(start)
	if err != nil {
		result.Message = err.Error()
		return result, nil
	}
	result.ServerVersion = v.Version

	version, err := semver.NewVersion(v.Version)
	if err != nil {
		result.Message = fmt.Sprintf("unparseable server version %q", v.Version)
		return result, nil
	}
	if !c.minVersion.Check(version) {
		result.Message = fmt.Sprintf("server version %s does not satisfy %s", version, c.config.MinServerVersion)
		return result, nil
	}

	result.Success = true
	result.Message = v.Produkt
	return result, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (c *EnventaConnector) get(ctx context.Context, op, path string, params url.Values, v any) error {
	body, err := c.client.do(ctx, op, apiRequest{
		method:  http.MethodGet,
		url:     c.endpoint(path, params),
		headers: c.headers(),
	})
	if err != nil {
		return err
	}
	return c.client.decode(op, body, v)
}

func (c *EnventaConnector) endpoint(path string, params url.Values) string {
	u := c.config.BaseURL + enventaAPIPrefix + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *EnventaConnector) headers() map[string]string {
	h := map[string]string{}
	if c.config.APIKey != "" {
		h["X-Api-Key"] = c.config.APIKey
	}
	if c.config.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.config.Username + ":" + c.config.Password))
		h["Authorization"] = "Basic " + creds
	}
	if c.config.Mandant != "" {
		h["X-Mandant"] = c.config.Mandant
	}
	return h
}

func pageParams(q erp.PageQuery) url.Values {
	params := url.Values{}
	params.Set("seite", strconv.Itoa(q.Page))
	params.Set("groesse", strconv.Itoa(q.PageSize))
	if q.ModifiedSince != nil {
		params.Set("geaendertSeit", q.ModifiedSince.UTC().Format(enventaTimeLayout))
	}
	return params
}

func convertEnventaAuftrag(a *EnventaAuftrag) erp.Order {
	order := erp.Order{
		Number:         a.AuftragsNr,
		ExternalRef:    a.Referenz,
		CustomerNumber: a.KundenNr,
		Status:         fromEnventaStatus(a.Status),
		Lines:          make([]erp.OrderLine, 0, len(a.Positionen)),
		Total:          a.Summe,
		CreatedAt:      a.ErstelltAm.Time,
		UpdatedAt:      a.GeaendertAm.Time,
	}
	for _, p := range a.Positionen {
		order.Lines = append(order.Lines, erp.OrderLine{
			ArticleNumber: p.ArtikelNr,
			Quantity:      p.Menge,
			UnitPrice:     p.Preis,
		})
	}
	if order.Total.IsZero() {
		order.Total = erp.OrderTotal(order.Lines)
	}
	return order
}

func toEnventaPositionen(lines []erp.OrderLine) []EnventaPosition {
	if len(lines) == 0 {
		return nil
	}
	out := make([]EnventaPosition, 0, len(lines))
	for _, l := range lines {
		out = append(out, EnventaPosition{ArtikelNr: l.ArticleNumber, Menge: l.Quantity, Preis: l.UnitPrice})
	}
	return out
}

// fromEnventaStatus maps enventa order states to OrderStatus
func fromEnventaStatus(status string) erp.OrderStatus {
	switch strings.ToLower(status) {
	case "offen":
		return erp.OrderStatusOpen
	case "bestaetigt", "bestätigt":
		return erp.OrderStatusConfirmed
	case "versendet", "geliefert":
		return erp.OrderStatusShipped
	case "fakturiert", "berechnet":
		return erp.OrderStatusInvoiced
	case "storniert":
		return erp.OrderStatusCancelled
	default:
		return erp.OrderStatusOpen
	}
}

// toEnventaStatus maps OrderStatus to the enventa state name
func toEnventaStatus(status erp.OrderStatus) string {
	switch status {
	case erp.OrderStatusConfirmed:
		return "bestaetigt"
	case erp.OrderStatusShipped:
		return "versendet"
	case erp.OrderStatusInvoiced:
		return "fakturiert"
	case erp.OrderStatusCancelled:
		return "storniert"
	default:
		return "offen"
	}
}

var _ erp.Connector = (*EnventaConnector)(nil)
