package erp

import (
	"strings"
)

// ---------------------------------------------------------------------------
// ErpType identifies the kind of ERP backend a tenant is connected to
// ---------------------------------------------------------------------------

// ErpType identifies the kind of ERP backend a tenant is connected to
type ErpType string

const (
	// ErpTypeEnventa represents enventa Trade via its connector service
	ErpTypeEnventa ErpType = "ENVENTA"
	// ErpTypeRest represents a generic REST/JSON ERP
	ErpTypeRest ErpType = "REST"
	// ErpTypeSandbox represents the in-process fake ERP used for demos and load tests
	ErpTypeSandbox ErpType = "SANDBOX"
)

// AllErpTypes returns every known ERP type
func AllErpTypes() []ErpType {
	return []ErpType{ErpTypeEnventa, ErpTypeRest, ErpTypeSandbox}
}

// IsValid returns true if the ERP type is known
func (t ErpType) IsValid() bool {
	switch t {
	case ErpTypeEnventa, ErpTypeRest, ErpTypeSandbox:
		return true
	default:
		return false
	}
}

// String returns the string representation of ErpType
func (t ErpType) String() string {
	return string(t)
}

// DisplayName returns a human-readable name for the ERP type
func (t ErpType) DisplayName() string {
	switch t {
	case ErpTypeEnventa:
		return "enventa Trade"
	case ErpTypeRest:
		return "Generic REST ERP"
	case ErpTypeSandbox:
		return "Sandbox"
	default:
		return string(t)
	}
}

// ParseErpType parses an ERP type case-insensitively.
// Returns ErrUnsupportedErpType for unknown values.
func ParseErpType(s string) (ErpType, error) {
	t := ErpType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", unsupportedErpType(s)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// Capabilities is a set of features a connector supports
type Capabilities uint8

const (
	// CapabilityArticles means the connector can read articles
	CapabilityArticles Capabilities = 1 << iota
	// CapabilityCustomers means the connector can read customers
	CapabilityCustomers
	// CapabilityOrders means the connector can read and write orders
	CapabilityOrders
	// CapabilityBatch means the connector accepts large page sizes efficiently
	CapabilityBatch
	// CapabilityRealTime means the connector reflects changes immediately (no batch export lag)
	CapabilityRealTime
)

// CapabilitiesAll is every capability
const CapabilitiesAll = CapabilityArticles | CapabilityCustomers | CapabilityOrders | CapabilityBatch | CapabilityRealTime

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapabilityArticles, "articles"},
	{CapabilityCustomers, "customers"},
	{CapabilityOrders, "orders"},
	{CapabilityBatch, "batch"},
	{CapabilityRealTime, "real_time"},
}

// Has returns true if all bits of c are set
func (c Capabilities) Has(other Capabilities) bool {
	return other != 0 && c&other == other
}

// Names returns the capability names in a stable order
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, cn := range capabilityNames {
		if c.Has(cn.cap) {
			names = append(names, cn.name)
		}
	}
	return names
}

// String returns the capabilities joined by "|"
func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), "|")
}
