package connectors

import (
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/erp/connector/internal/domain/erp"
)

// EnventaConfig holds configuration for the enventa Trade connector service
type EnventaConfig struct {
	// BaseURL is the base URL of the enventa connector service
	BaseURL string
	// APIKey is sent as X-Api-Key
	APIKey string
	// Username and Password enable basic auth when the service requires it
	Username string
	Password string
	// Mandant selects the enventa client (company) inside the installation
	Mandant string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// MinServerVersion is a semver constraint checked by TestConnection
	MinServerVersion string
}

const (
	// DefaultEnventaTimeout is used when no timeout is configured
	DefaultEnventaTimeout = 30 * time.Second
	// DefaultEnventaMinVersion is the oldest connector service release we talk to
	DefaultEnventaMinVersion = ">= 4.2.0"
)

// Errors for enventa configuration
var (
	ErrEnventaConfigMissingBaseURL = errors.New("enventa: base URL is required")
	ErrEnventaConfigMissingAuth    = errors.New("enventa: API key or username/password is required")
	ErrEnventaInvalidVersionRule   = errors.New("enventa: invalid minimum server version constraint")
)

// NewEnventaConfig builds the connector configuration from a tenant's ERP configuration
func NewEnventaConfig(cfg *erp.TenantErpConfig) *EnventaConfig {
	return &EnventaConfig{
		BaseURL:          cfg.BaseURL,
		APIKey:           cfg.APIKey,
		Username:         cfg.Username,
		Password:         cfg.Password,
		Mandant:          cfg.Option("mandant", ""),
		Timeout:          cfg.Timeout,
		MinServerVersion: cfg.Option("min_server_version", DefaultEnventaMinVersion),
	}
}

// Validate validates the configuration and fills defaults
func (c *EnventaConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrEnventaConfigMissingBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKey == "" && (c.Username == "" || c.Password == "") {
		return ErrEnventaConfigMissingAuth
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultEnventaTimeout
	}
	if c.MinServerVersion == "" {
		c.MinServerVersion = DefaultEnventaMinVersion
	}
	if _, err := semver.NewConstraint(c.MinServerVersion); err != nil {
		return errors.Join(ErrEnventaInvalidVersionRule, err)
	}
	return nil
}
