// Package multitenantengine keeps one decision engine per tenant. Each
// tenant has its own function registry, so functions a tenant defines are
// invisible to the others.
package multitenantengine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/rules"
)

// Errors returned for tenant lookups
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantExists   = errors.New("tenant already exists")
)

// Functions maps a function name to its definition in the expression
// language, for example "discounted" -> "function(price, rate) price * (1 - rate)"
type Functions map[string]string

// TenantEngine wraps a rules.Engine with tenant-specific metadata
type TenantEngine struct {
	TenantID  string
	Functions Functions
	Engine    *rules.Engine
}

// Manager manages engines for all tenants
type Manager struct {
	engines    map[string]*TenantEngine
	engineOpts []rules.EngineOption
	interpOpts []feel.Option
	newStore   func(tenantID string) rules.ModelStore
	cacheSize  int
	logger     *slog.Logger
	mu         sync.RWMutex
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithEngineOptions applies opts to every tenant engine, typically shared
// metrics and a recorder
func WithEngineOptions(opts ...rules.EngineOption) ManagerOption {
	return func(m *Manager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// WithInterpreterOptions applies opts to every tenant interpreter
func WithInterpreterOptions(opts ...feel.Option) ManagerOption {
	return func(m *Manager) { m.interpOpts = append(m.interpOpts, opts...) }
}

// WithStoreFactory replaces the per-tenant in-memory model store
func WithStoreFactory(fn func(tenantID string) rules.ModelStore) ManagerOption {
	return func(m *Manager) { m.newStore = fn }
}

// WithParseCacheSize bounds each tenant's parse cache. Every tenant gets
// its own cache since parses depend on the tenant's function names.
func WithParseCacheSize(n int) ManagerOption {
	return func(m *Manager) { m.cacheSize = n }
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager with no tenants
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		engines:  make(map[string]*TenantEngine),
		newStore: func(string) rules.ModelStore { return rules.NewInMemoryModelStore() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "multitenantengine")
	return m
}

// CreateTenant creates a tenant engine whose registry holds the standard
// built-ins plus fns
func (m *Manager) CreateTenant(tenantID string, fns Functions) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}
	if err := ValidateFunctions(fns); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[tenantID]; exists {
		return fmt.Errorf("%w: %s", ErrTenantExists, tenantID)
	}

	engine, err := m.newEngine(tenantID, fns, m.newStore(tenantID))
	if err != nil {
		return err
	}
	m.engines[tenantID] = &TenantEngine{TenantID: tenantID, Functions: fns, Engine: engine}
	m.logger.Info("tenant created", "tenant_id", tenantID, "functions", len(fns))
	return nil
}

func (m *Manager) newEngine(tenantID string, fns Functions, store rules.ModelStore) (*rules.Engine, error) {
	reg := feel.NewRegistry()
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	// a body can only use multi-word names registered before it
	sort.Strings(names)
	for _, name := range names {
		if err := reg.RegisterExpression(name, fns[name]); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
		}
	}

	// the registry must be installed before options that configure it
	interpOpts := append([]feel.Option{feel.WithRegistry(reg)}, m.interpOpts...)
	if m.cacheSize > 0 {
		cfg := feel.DefaultCacheConfig()
		cfg.MaxEntries = m.cacheSize
		interpOpts = append(interpOpts, feel.WithCache(feel.NewInMemoryExprCache(cfg)))
	}
	opts := append([]rules.EngineOption{}, m.engineOpts...)
	opts = append(opts,
		rules.WithInterpreter(feel.NewInterpreter(interpOpts...)),
		rules.WithEngineLogger(m.logger.With("tenant_id", tenantID)),
	)

	engine, err := rules.NewEngine(store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for tenant %s: %w", tenantID, err)
	}
	return engine, nil
}

// GetEngine retrieves the engine for a specific tenant
func (m *Manager) GetEngine(tenantID string) (*rules.Engine, error) {
	te, err := m.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Engine, nil
}

// GetTenant returns the tenant with its functions
func (m *Manager) GetTenant(tenantID string) (*TenantEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return te, nil
}

// UpdateTenantFunctions replaces a tenant's functions. A new engine is built
// with the new registry, every model of the tenant is recompiled against it
// and the engines are swapped only when that succeeds, so evaluations keep
// running on the old engine meanwhile.
func (m *Manager) UpdateTenantFunctions(tenantID string, fns Functions) error {
	if err := ValidateFunctions(fns); err != nil {
		return err
	}

	m.mu.RLock()
	existing, exists := m.engines[tenantID]
	m.mu.RUnlock()
	if !exists {
		return m.CreateTenant(tenantID, fns)
	}

	models, err := existing.Engine.ListModels()
	if err != nil {
		return fmt.Errorf("failed to list models of tenant %s: %w", tenantID, err)
	}

	engine, err := m.newEngine(tenantID, fns, m.newStore(tenantID))
	if err != nil {
		return err
	}
	for _, model := range models {
		// the old engine keeps evaluating model while the new one normalizes
		// its own copy
		if err := engine.PutModel(model.Clone()); err != nil {
			return fmt.Errorf("model %s does not compile with the new functions: %w", model.ID, err)
		}
	}

	m.mu.Lock()
	m.engines[tenantID] = &TenantEngine{TenantID: tenantID, Functions: fns, Engine: engine}
	m.mu.Unlock()

	m.logger.Info("tenant functions updated",
		"tenant_id", tenantID,
		"functions", len(fns),
		"models_recompiled", len(models),
	)
	return nil
}

// ListTenants returns all tenant IDs in sorted order
func (m *Manager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]string, 0, len(m.engines))
	for tenantID := range m.engines {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}

// DeleteTenant removes a tenant and its engine
func (m *Manager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[tenantID]; !exists {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	delete(m.engines, tenantID)
	m.logger.Info("tenant deleted", "tenant_id", tenantID)
	return nil
}
