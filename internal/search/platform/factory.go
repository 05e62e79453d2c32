package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
)

// Constructor builds an adapter from its configuration section.
type Constructor func(cfg *types.PlatformConfig, log *logger.Logger) (Adapter, error)

// Factory creates adapter instances
type Factory struct {
	mu           sync.RWMutex
	constructors map[types.PlatformCode]Constructor
	logger       *logger.Logger
}

// NewFactory creates a factory with the built-in marketplaces registered
func NewFactory(log *logger.Logger) *Factory {
	f := &Factory{
		constructors: make(map[types.PlatformCode]Constructor),
		logger:       log,
	}

	f.Register(types.PlatformRakuten, NewRakutenAdapter)
	f.Register(types.PlatformYahoo, NewYahooAdapter)
	f.Register(types.PlatformMercari, NewMercariAdapter)

	return f
}

// Register registers an adapter constructor
func (f *Factory) Register(code types.PlatformCode, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[code] = constructor
}

// Create creates an adapter from configuration
func (f *Factory) Create(code types.PlatformCode, cfg *types.PlatformConfig) (Adapter, error) {
	if cfg.Name == "" {
		cfg.Name = string(code)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for %s: %w", code, err)
	}

	f.mu.RLock()
	constructor, exists := f.constructors[code]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrPlatformNotFound, code)
	}

	return constructor(cfg, f.logger)
}

// ListPlatforms returns the codes with a registered constructor
func (f *Factory) ListPlatforms() []types.PlatformCode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	codes := make([]types.PlatformCode, 0, len(f.constructors))
	for code := range f.constructors {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// BuildRegistry creates every enabled platform from configs. A platform
// that is disabled or fails to build is skipped with a warning so one bad
// section does not take the service down.
func (f *Factory) BuildRegistry(configs map[string]*types.PlatformConfig) *Registry {
	reg := NewRegistry()

	keys := make([]string, 0, len(configs))
	for k := range configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cfg := configs[key]
		if cfg == nil || !cfg.Enabled {
			f.logger.Info("platform disabled", zap.String("platform", key))
			continue
		}

		adapter, err := f.Create(types.PlatformCode(key), cfg)
		if err != nil {
			f.logger.Warn("skipping platform", zap.String("platform", key), zap.Error(err))
			continue
		}
		if err := reg.Register(adapter); err != nil {
			f.logger.Warn("skipping platform", zap.String("platform", key), zap.Error(err))
			continue
		}
		f.logger.Info("platform enabled",
			zap.String("platform", key),
			zap.Duration("timeout", adapter.Info().Timeout),
		)
	}
	return reg
}
