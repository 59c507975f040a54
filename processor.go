package sdk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/config/postprocess"
	"github.com/hashicorp/dynamic-datasource-sdk/config/validation"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource/sqlpool"
	"github.com/hashicorp/dynamic-datasource-sdk/env"
	"github.com/hashicorp/dynamic-datasource-sdk/framework/scope"
	"github.com/hashicorp/dynamic-datasource-sdk/internal/metrics"
)

// Processor turns configurations into active dynamic data sources.
//
// Processing a configuration runs the post processors, validates the
// result and activates it. The first time a property is processed a
// DynamicDataSource is registered for it; later runs for the same property
// activate the new configuration on that data source. Once active the
// configuration is stripped of its data source definitions.
type Processor struct {
	logger     hclog.Logger
	env        env.Environment
	lookup     config.ModuleLookup
	loader     *config.Loader
	loaderOpts []config.LoaderOption
	provider   datasource.Provider
	unitOpts   []datasource.UnitOption
	parent     *scope.Scope
	dsOpts     []datasource.Option

	postProcessors postprocess.Chain
	validators     validation.Chain
	factory        datasource.UnitFactory

	mu      sync.Mutex
	sources map[string]*datasource.DynamicDataSource
	configs map[string]*config.Config
	closed  bool
}

// NewProcessor returns a Processor. Without options it reads properties
// from a new viper instance and opens pools with sqlpool.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		logger:  hclog.L(),
		lookup:  config.DefaultRegistry,
		sources: map[string]*datasource.DynamicDataSource{},
		configs: map[string]*config.Config{},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.Named("processor")
	if p.env == nil {
		p.env = env.New(nil)
	}
	if p.provider == nil {
		p.provider = sqlpool.New(sqlpool.WithLogger(p.logger))
	}
	if p.postProcessors == nil {
		p.postProcessors = DefaultPostProcessors(p.lookup, p.env)
	}
	if p.validators == nil {
		p.validators = DefaultValidators(p.lookup)
	}

	p.loader = config.NewLoader(p.env, p.loaderOpts...)
	p.factory = datasource.NewUnitFactory(p.provider, append([]datasource.UnitOption{
		datasource.WithUnitLogger(p.logger),
		datasource.WithUnitModuleLookup(p.lookup),
	}, p.unitOpts...)...)

	return p
}

// DefaultPostProcessors returns the post processors a Processor runs when
// none are given. Relaxed keys are canonicalized before entries inherit
// from each other.
func DefaultPostProcessors(l config.ModuleLookup, e env.Environment) postprocess.Chain {
	return postprocess.Chain{
		postprocess.NameProcessor{},
		postprocess.PropertyKeyProcessor{},
		datasource.PropertiesPostProcessor{},
		postprocess.NewTransactionProcessor(l, e),
		postprocess.NewShardingProcessor(l),
		postprocess.NewMapperProcessor(l),
	}
}

// DefaultValidators returns the validators a Processor runs when none are
// given.
func DefaultValidators(l config.ModuleLookup) validation.Chain {
	return validation.Chain{
		validation.NameValidator{},
		validation.ModulesValidator{Lookup: l},
		datasource.ExclusivityValidator{},
		datasource.PropertiesValidator{},
	}
}

// Prepare post processes and validates c without activating it. The
// returned error is a *validation.Errors when c is invalid.
func (p *Processor) Prepare(ctx context.Context, c *config.Config, propertyName string) error {
	p.postProcessors.PostProcess(ctx, c, propertyName)

	errs := p.validators.Validate(ctx, c, propertyName)
	metrics.CounterValidations.WithLabelValues(metrics.Result(errs.ErrorOrNil())).Inc()
	if err := errs.ErrorOrNil(); err != nil {
		p.logger.Warn("invalid configuration", "property", propertyName, "err", err)
		return err
	}

	return nil
}

// Process prepares and activates c as the configuration of propertyName.
func (p *Processor) Process(ctx context.Context, c *config.Config, propertyName string) (*datasource.DynamicDataSource, error) {
	if err := p.Prepare(ctx, c, propertyName); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, datasource.ErrClosed
	}

	ds, ok := p.sources[propertyName]
	if ok {
		if err := ds.Activate(ctx, c, propertyName); err != nil {
			return nil, err
		}

		p.logger.Info("reactivated dynamic data source", "property", propertyName, "config", c.Name)
	} else {
		ds = datasource.New(propertyName, c, p.factory, p.dataSourceOptions()...)
		if err := ds.Initialize(ctx); err != nil {
			if cerr := ds.Close(); cerr != nil {
				p.logger.Warn("error closing failed data source", "property", propertyName, "err", cerr)
			}
			return nil, err
		}

		p.sources[propertyName] = ds
		p.logger.Info("registered dynamic data source",
			"property", propertyName,
			"bean", config.BeanName(c, propertyName))
	}

	p.configs[propertyName] = c
	c.StripDataSources()
	return ds, nil
}

func (p *Processor) dataSourceOptions() []datasource.Option {
	return append([]datasource.Option{
		datasource.WithLogger(p.logger),
		datasource.WithEnvironment(p.env),
		datasource.WithParentScope(p.parent),
	}, p.dsOpts...)
}

// Load reads the configuration of propertyName from the environment and
// processes it.
func (p *Processor) Load(ctx context.Context, propertyName string) (*datasource.DynamicDataSource, error) {
	c, err := p.loader.Load(propertyName)
	if err != nil {
		return nil, err
	}

	return p.Process(ctx, c, propertyName)
}

// LoadAll processes every configuration in the environment. Every
// configuration is attempted; the returned error aggregates the failures
// and the map holds the data sources that were activated.
func (p *Processor) LoadAll(ctx context.Context) (map[string]*datasource.DynamicDataSource, error) {
	configs, err := p.loader.LoadAll()
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		result = map[string]*datasource.DynamicDataSource{}
		errs   error
	)

	var g errgroup.Group
	for propertyName, c := range configs {
		propertyName, c := propertyName, c
		g.Go(func() error {
			ds, err := p.Process(ctx, c, propertyName)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", propertyName, err))
				return nil
			}

			result[propertyName] = ds
			return nil
		})
	}

	// Failures are collected in errs.
	_ = g.Wait()

	p.logger.Debug("loaded configurations", "total", len(configs), "active", len(result))
	return result, errs
}

// DataSource returns the data source registered for propertyName.
func (p *Processor) DataSource(propertyName string) (*datasource.DynamicDataSource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ds, ok := p.sources[propertyName]
	return ds, ok
}

// Config returns the last configuration activated for propertyName. Its
// data source definitions have been stripped.
func (p *Processor) Config(propertyName string) (*config.Config, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.configs[propertyName]
	return c, ok
}

// PropertyNames returns the property names with a registered data source
// in sorted order.
func (p *Processor) PropertyNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]string, 0, len(p.sources))
	for k := range p.sources {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// BeanNames maps the bean name of every active configuration to its
// property name.
func (p *Processor) BeanNames() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(map[string]string, len(p.configs))
	for prop, c := range p.configs {
		result[config.BeanName(c, prop)] = prop
	}
	return result
}

// Close closes every registered data source. Calling Close more than once
// is a no-op.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sources := p.sources
	p.sources = map[string]*datasource.DynamicDataSource{}
	p.mu.Unlock()

	var result error
	for prop, ds := range sources {
		if err := ds.Close(); err != nil {
			result = multierror.Append(result, multierror.Prefix(err, prop+":"))
		}
	}

	return result
}

// Option is used to configure NewProcessor.
type Option func(*Processor)

// WithLogger specifies the logger to use. If this is not set then this
// will use the default hclog logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithEnvironment sets where configurations and host properties are read
// from.
func WithEnvironment(e env.Environment) Option {
	return func(p *Processor) { p.env = e }
}

// WithModuleLookup replaces config.DefaultRegistry.
func WithModuleLookup(l config.ModuleLookup) Option {
	return func(p *Processor) { p.lookup = l }
}

// WithProvider sets the pool provider. The default is sqlpool.
func WithProvider(pr datasource.Provider) Option {
	return func(p *Processor) { p.provider = pr }
}

// WithPostProcessors replaces DefaultPostProcessors.
func WithPostProcessors(ch postprocess.Chain) Option {
	return func(p *Processor) { p.postProcessors = ch }
}

// WithValidators replaces DefaultValidators.
func WithValidators(ch validation.Chain) Option {
	return func(p *Processor) { p.validators = ch }
}

// WithParentScope sets the scope every unit is a child of.
func WithParentScope(s *scope.Scope) Option {
	return func(p *Processor) { p.parent = s }
}

// WithLoaderOptions passes opts to the configuration loader.
func WithLoaderOptions(opts ...config.LoaderOption) Option {
	return func(p *Processor) { p.loaderOpts = append(p.loaderOpts, opts...) }
}

// WithUnitOptions passes opts to the unit factory.
func WithUnitOptions(opts ...datasource.UnitOption) Option {
	return func(p *Processor) { p.unitOpts = append(p.unitOpts, opts...) }
}

// WithDataSourceOptions passes opts to every DynamicDataSource.
func WithDataSourceOptions(opts ...datasource.Option) Option {
	return func(p *Processor) { p.dsOpts = append(p.dsOpts, opts...) }
}
