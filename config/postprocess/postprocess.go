// Package postprocess normalizes and enriches configurations before they
// are validated.
//
// Post processors mutate a configuration in place. A Chain runs every
// processor that supports the configuration exactly once, in the order
// the processors were registered.
package postprocess

import (
	"context"
	"reflect"
	"strings"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
)

// PostProcessor transforms a configuration in place.
type PostProcessor interface {
	// Supports reports whether the processor applies to c.
	Supports(ctx context.Context, c *config.Config, propertyName string) bool

	// PostProcess mutates c.
	PostProcess(ctx context.Context, c *config.Config, propertyName string)
}

// Chain runs post processors in registration order.
type Chain []PostProcessor

// PostProcess runs every supporting processor once.
func (ch Chain) PostProcess(ctx context.Context, c *config.Config, propertyName string) {
	for _, p := range ch {
		if p.Supports(ctx, c, propertyName) {
			p.PostProcess(ctx, c, propertyName)
		}
	}
}

// Func is a PostProcessor that always applies.
type Func func(ctx context.Context, c *config.Config, propertyName string)

func (f Func) Supports(context.Context, *config.Config, string) bool { return true }

func (f Func) PostProcess(ctx context.Context, c *config.Config, propertyName string) {
	f(ctx, c, propertyName)
}

// NameProcessor fills a missing name from the trailing segment of the
// property key.
type NameProcessor struct{}

func (NameProcessor) Supports(_ context.Context, c *config.Config, _ string) bool {
	return strings.TrimSpace(c.Name) == ""
}

func (NameProcessor) PostProcess(_ context.Context, c *config.Config, propertyName string) {
	c.Name = config.NameFromPropertyName(propertyName)
}

// ModuleProcessor runs Process only when Module is present on the
// configuration.
type ModuleProcessor struct {
	// Module is the declared module name.
	Module string

	// Lookup resolves modules. config.DefaultRegistry is used when nil.
	Lookup config.ModuleLookup

	Process func(ctx context.Context, c *config.Config, propertyName, module string)
}

func (p *ModuleProcessor) Supports(_ context.Context, c *config.Config, _ string) bool {
	_, ok := lookup(p.Lookup).Resolve(c, p.Module)
	return ok
}

func (p *ModuleProcessor) PostProcess(ctx context.Context, c *config.Config, propertyName string) {
	p.Process(ctx, c, propertyName, p.Module)
}

// ConfigurationProcessor runs Process with the module sub configuration
// when it is present and of type T. Before Process runs, the sub
// configuration is named "<config name>.<module>".
type ConfigurationProcessor[T config.Named] struct {
	Module string
	Lookup config.ModuleLookup

	// Process is optional.
	Process func(ctx context.Context, c *config.Config, propertyName, module string, v T)
}

func (p *ConfigurationProcessor[T]) Supports(_ context.Context, c *config.Config, _ string) bool {
	_, ok := p.resolve(c)
	return ok
}

func (p *ConfigurationProcessor[T]) PostProcess(ctx context.Context, c *config.Config, propertyName string) {
	v, ok := p.resolve(c)
	if !ok {
		return
	}

	v.SetModuleName(c.Name + "." + p.Module)
	if p.Process != nil {
		p.Process(ctx, c, propertyName, p.Module, v)
	}
}

func (p *ConfigurationProcessor[T]) resolve(c *config.Config) (T, bool) {
	var zero T

	raw, ok := lookup(p.Lookup).Resolve(c, p.Module)
	if !ok || raw == nil {
		return zero, false
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return zero, false
	}

	v, ok := raw.(T)
	return v, ok
}

func lookup(l config.ModuleLookup) config.ModuleLookup {
	if l == nil {
		return config.DefaultRegistry
	}
	return l
}
