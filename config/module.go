package config

import (
	"reflect"
	"sort"
)

// Module names known to the default registry.
const (
	ModuleDataSource                 = "datasource"
	ModuleHighAvailabilityDataSource = "ha-datasource"
	ModuleTransaction                = "transaction"
	ModuleSharding                   = "sharding"
	ModuleMapper                     = "mapper"
)

// ModuleLookup resolves module sub configurations on a Config by name.
type ModuleLookup interface {
	// Resolve returns the sub configuration for the named module and
	// whether it is present on c.
	Resolve(c *Config, name string) (interface{}, bool)

	// Modules returns the names of all known modules.
	Modules() []string
}

// Module describes one sub configuration of a Config.
type Module struct {
	// Name is the declared module name.
	Name string

	// Type is the type of value Get returns.
	Type reflect.Type

	// Get returns the sub configuration and whether it is present.
	Get func(c *Config) (interface{}, bool)
}

// Registry is a static ModuleLookup.
type Registry struct {
	modules map[string]*Module
}

// NewRegistry returns a registry of the given modules.
func NewRegistry(modules ...*Module) *Registry {
	r := &Registry{modules: map[string]*Module{}}
	for _, m := range modules {
		r.modules[m.Name] = m
	}

	return r
}

// Resolve implements ModuleLookup.
func (r *Registry) Resolve(c *Config, name string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}

	m, ok := r.modules[name]
	if !ok {
		return nil, false
	}

	return m.Get(c)
}

// Modules implements ModuleLookup.
func (r *Registry) Modules() []string {
	result := make([]string, 0, len(r.modules))
	for n := range r.modules {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// Module returns the named module or nil.
func (r *Registry) Module(name string) *Module {
	return r.modules[name]
}

// Present returns the names of the modules present on c, sorted.
func Present(l ModuleLookup, c *Config) []string {
	var result []string
	for _, n := range l.Modules() {
		if _, ok := l.Resolve(c, n); ok {
			result = append(result, n)
		}
	}

	return result
}

// DefaultRegistry knows every module of Config.
var DefaultRegistry = NewRegistry(
	&Module{
		Name: ModuleDataSource,
		Type: reflect.TypeOf([]Properties(nil)),
		Get: func(c *Config) (interface{}, bool) {
			return c.DataSource, c.HasDataSource()
		},
	},
	&Module{
		Name: ModuleHighAvailabilityDataSource,
		Type: reflect.TypeOf(map[string][]Properties(nil)),
		Get: func(c *Config) (interface{}, bool) {
			return c.HighAvailabilityDataSource, c.HasHighAvailabilityDataSource()
		},
	},
	&Module{
		Name: ModuleTransaction,
		Type: reflect.TypeOf((*Transaction)(nil)),
		Get: func(c *Config) (interface{}, bool) {
			return c.Transaction, c.Transaction != nil
		},
	},
	&Module{
		Name: ModuleSharding,
		Type: reflect.TypeOf((*Sharding)(nil)),
		Get: func(c *Config) (interface{}, bool) {
			return c.Sharding, c.Sharding != nil
		},
	},
	&Module{
		Name: ModuleMapper,
		Type: reflect.TypeOf((*Mapper)(nil)),
		Get: func(c *Config) (interface{}, bool) {
			return c.Mapper, c.Mapper != nil
		},
	},
)
