package tenantconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// reloadDebounce collapses the burst of events editors produce on save
const reloadDebounce = 250 * time.Millisecond

// ChangeFunc is called after a reload with the tenants whose configuration
// was added, changed or removed
type ChangeFunc func(changed []uuid.UUID)

type fileDocument struct {
	Tenants []erp.TenantErpConfig `yaml:"tenants"`
}

// FileProvider reads tenant configurations from a YAML file:
//
//	tenants:
//	  - tenant_id: 2b1f0c9e-7d43-4c1e-9a57-6f0d2f7f1a10
//	    erp_type: enventa
//	    base_url: https://erp.example.com
//	    api_key: ${ENVENTA_API_KEY}
//	    timeout: 20s
//	    rate_limit: 10
//
// Environment references are expanded before parsing. Watch reloads the
// file on change; a file that fails to parse or validate leaves the previous
// configuration in effect.
type FileProvider struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	configs  map[uuid.UUID]erp.TenantErpConfig
	onChange []ChangeFunc
}

// FileProviderOption configures a FileProvider
type FileProviderOption func(*FileProvider)

// WithLogger sets the provider logger
func WithLogger(logger *zap.Logger) FileProviderOption {
	return func(p *FileProvider) {
		p.logger = logger
	}
}

// WithChangeHandler registers fn to run after every successful reload that
// changed at least one tenant
func WithChangeHandler(fn ChangeFunc) FileProviderOption {
	return func(p *FileProvider) {
		p.onChange = append(p.onChange, fn)
	}
}

// NewFileProvider loads path and returns the provider
func NewFileProvider(path string, opts ...FileProviderOption) (*FileProvider, error) {
	p := &FileProvider{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	configs, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	p.configs = configs

	p.logger.Info("Tenant configuration loaded",
		zap.String("path", path),
		zap.Int("tenants", len(configs)))
	return p, nil
}

// ParseTenants parses a tenants document, normalizing ERP types and
// validating every entry
func ParseTenants(data []byte) (map[uuid.UUID]erp.TenantErpConfig, error) {
	var doc fileDocument
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse tenant configuration: %w", err)
	}

	configs := make(map[uuid.UUID]erp.TenantErpConfig, len(doc.Tenants))
	for i, cfg := range doc.Tenants {
		erpType, err := erp.ParseErpType(string(cfg.ErpType))
		if err != nil {
			return nil, fmt.Errorf("tenants[%d]: %w", i, err)
		}
		cfg.ErpType = erpType
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if _, dup := configs[cfg.TenantID]; dup {
			return nil, fmt.Errorf("tenants[%d]: %w: tenant %s is configured twice", i, erp.ErrInvalidArgument, cfg.TenantID)
		}
		configs[cfg.TenantID] = cfg
	}
	return configs, nil
}

func loadFile(path string) (map[uuid.UUID]erp.TenantErpConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant configuration: %w", err)
	}
	configs, err := ParseTenants(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return configs, nil
}

func (p *FileProvider) GetTenantConfig(_ context.Context, tenantID uuid.UUID) (*erp.TenantErpConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lookup(p.configs, tenantID)
}

func (p *FileProvider) ListTenants(_ context.Context) ([]uuid.UUID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedIDs(p.configs), nil
}

// Reload re-reads the file and returns the tenants whose configuration
// changed. Change handlers are called when the set is not empty.
func (p *FileProvider) Reload() ([]uuid.UUID, error) {
	configs, err := loadFile(p.path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	changed := diff(p.configs, configs)
	p.configs = configs
	handlers := append([]ChangeFunc(nil), p.onChange...)
	p.mu.Unlock()

	if len(changed) > 0 {
		p.logger.Info("Tenant configuration reloaded",
			zap.Int("tenants", len(configs)),
			zap.Int("changed", len(changed)))
		for _, fn := range handlers {
			fn(changed)
		}
	}
	return changed, nil
}

func diff(old, updated map[uuid.UUID]erp.TenantErpConfig) []uuid.UUID {
	seen := maps.Clone(old)
	var changed []uuid.UUID
	for id, cfg := range updated {
		prev, ok := seen[id]
		delete(seen, id)
		if !ok || !reflect.DeepEqual(prev, cfg) {
			changed = append(changed, id)
		}
	}
	for id := range seen {
		changed = append(changed, id)
	}
	return changed
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so that atomic replace-on-save is picked up.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", p.path, err)
	}

	go p.watchLoop(ctx, watcher)
	return nil
}

func (p *FileProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(p.path)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce = time.After(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("Tenant configuration watcher error", zap.Error(err))

		case <-debounce:
			debounce = nil
			if _, err := p.Reload(); err != nil {
				p.logger.Error("Tenant configuration reload failed, keeping previous configuration",
					zap.String("path", p.path),
					zap.Error(err))
			}
		}
	}
}

var _ erp.TenantConfigProvider = (*FileProvider)(nil)
