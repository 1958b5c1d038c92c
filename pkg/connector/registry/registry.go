package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/statusflow/statusflow/pkg/config"
	"github.com/statusflow/statusflow/pkg/connector/core"
	"github.com/statusflow/statusflow/pkg/errors"
	"github.com/statusflow/statusflow/pkg/logger"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	sinks   map[string]SinkFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// SourceFactory is a function that creates source connector instances.
// It takes the resolved parameter set and returns a configured Source
// connector or an error. Invalid configuration (such as an unknown
// consumption mode) must fail here, at startup, not at record time.
type SourceFactory func(params *config.Params) (core.Source, error)

// SinkFactory is a function that creates sink connector instances.
// It takes the resolved parameter set and returns a configured Sink
// connector or an error.
type SinkFactory func(params *config.Params) (core.Sink, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		sinks:   make(map[string]SinkFactory),
		logger:  logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s already registered", name))
	}

	r.sources[name] = factory
	r.logger.Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterSink registers a sink connector factory
func (r *Registry) RegisterSink(name string, factory SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink connector %s already registered", name))
	}

	r.sinks[name] = factory
	r.logger.Debug("sink connector registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(name string, params *config.Params) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s not found", name))
	}

	source, err := factory(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source connector %s", name))
	}

	return source, nil
}

// CreateSink creates a sink connector instance
func (r *Registry) CreateSink(name string, params *config.Params) (core.Sink, error) {
	r.mu.RLock()
	factory, exists := r.sinks[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink connector %s not found", name))
	}

	sink, err := factory(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create sink connector %s", name))
	}

	return sink, nil
}

// ListSources returns a list of registered source connectors
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	return sources
}

// ListSinks returns a list of registered sink connectors
func (r *Registry) ListSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		sinks = append(sinks, name)
	}
	return sinks
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasSink checks if a sink connector is registered
func (r *Registry) HasSink(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sinks[name]
	return exists
}

// Clear removes all registered connectors (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = make(map[string]SourceFactory)
	r.sinks = make(map[string]SinkFactory)
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterSink registers a sink connector in the global registry
func RegisterSink(name string, factory SinkFactory) error {
	return globalRegistry.RegisterSink(name, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, params *config.Params) (core.Source, error) {
	return globalRegistry.CreateSource(name, params)
}

// CreateSink creates a sink connector from the global registry
func CreateSink(name string, params *config.Params) (core.Sink, error) {
	return globalRegistry.CreateSink(name, params)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListSinks returns registered sinks from the global registry
func ListSinks() []string {
	return globalRegistry.ListSinks()
}

// HasSource checks if a source is registered in the global registry
func HasSource(name string) bool {
	return globalRegistry.HasSource(name)
}

// HasSink checks if a sink is registered in the global registry
func HasSink(name string) bool {
	return globalRegistry.HasSink(name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
