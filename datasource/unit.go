package datasource

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/framework/scope"
	"github.com/hashicorp/dynamic-datasource-sdk/internal/metrics"
)

// Bean names of a unit.
const (
	BeanDataSourceProperties = "dataSourceProperties"
	BeanDataSource           = "dataSource"
	BeanConnectionValidator  = "connectionValidator"
	BeanTransactionManager   = "transactionManager"
)

// KeyConnectionTestQuery is the data source property holding a query run
// against every new pool before it is published.
const KeyConnectionTestQuery = "connectionTestQuery"

// Unit is a disposable scope that owns the pools built for one
// activation.
type Unit interface {
	// ID uniquely identifies the unit.
	ID() string

	// DataSources returns the pools of the unit in registration order.
	DataSources() []NamedDataSource

	// Close disposes the unit. Calling Close more than once is a no-op.
	Close() error
}

// UnitFactory builds the Unit for an activation. parent is the scope the
// unit's own scope is a child of and may be nil.
type UnitFactory func(ctx context.Context, c *config.Config, propertyName string, parent *scope.Scope) (Unit, error)

// NamedDataSource is one pool of a unit.
type NamedDataSource struct {
	Name       string
	Primary    bool
	Properties config.Properties
	DataSource DataSource
}

// Select returns the delegate of a unit: the single entry marked primary,
// or the first entry when none is marked.
func Select(list []NamedDataSource) (NamedDataSource, error) {
	flags := make([]bool, len(list))
	for i, ds := range list {
		flags[i] = ds.Primary
	}

	idx, err := selectIndex(flags)
	if err != nil {
		return NamedDataSource{}, err
	}

	return list[idx], nil
}

func selectIndex(primary []bool) (int, error) {
	if len(primary) == 0 {
		return 0, ErrNoDataSource
	}

	idx := -1
	for i, p := range primary {
		if !p {
			continue
		}

		if idx >= 0 {
			return 0, ErrAmbiguousDataSource
		}
		idx = i
	}

	if idx < 0 {
		idx = 0
	}

	return idx, nil
}

// PropertiesState is the state of the dataSourceProperties bean.
type PropertiesState struct {
	Entries []config.Properties
	Names   []string
	Primary int
}

// Pools is the state of the dataSource bean.
type Pools struct {
	List []NamedDataSource
}

// TransactionManager is the state of the transactionManager bean.
type TransactionManager struct {
	Name       string
	Timeout    time.Duration
	Options    sql.TxOptions
	DataSource DataSource
}

// Context returns ctx bounded by the transaction timeout, if any.
func (m *TransactionManager) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, m.Timeout)
}

// unitInput is what every bean of a unit is built from.
type unitInput struct {
	ctx          context.Context
	config       *config.Config
	propertyName string
	zone         string
	provider     Provider
	logger       hclog.Logger
}

// NewUnitFactory returns a UnitFactory that opens pools with p.
func NewUnitFactory(p Provider, opts ...UnitOption) UnitFactory {
	var cfg unitConfig
	cfg.logger = hclog.L()
	cfg.lookup = config.DefaultRegistry
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, c *config.Config, propertyName string, parent *scope.Scope) (Unit, error) {
		return newUnit(ctx, &cfg, p, c, propertyName, parent)
	}
}

type unitConfig struct {
	logger hclog.Logger
	lookup config.ModuleLookup
	beans  []func() *scope.Bean
}

// UnitOption is used to configure NewUnitFactory.
type UnitOption func(*unitConfig)

// WithUnitLogger sets the logger units log to.
func WithUnitLogger(l hclog.Logger) UnitOption {
	return func(c *unitConfig) { c.logger = l }
}

// WithUnitModuleLookup sets the lookup deciding which module beans a unit
// gets.
func WithUnitModuleLookup(l config.ModuleLookup) UnitOption {
	return func(c *unitConfig) { c.lookup = l }
}

// WithUnitBean adds a bean built by f to every unit. The bean may depend
// on *Pools, *TransactionManager and anything the parent scope provides.
func WithUnitBean(f func() *scope.Bean) UnitOption {
	return func(c *unitConfig) { c.beans = append(c.beans, f) }
}

// unit is a Unit backed by a child scope.
type unit struct {
	id     string
	scope  *scope.Scope
	pools  *Pools
	logger hclog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newUnit(
	ctx context.Context,
	cfg *unitConfig,
	p Provider,
	c *config.Config,
	propertyName string,
	parent *scope.Scope,
) (Unit, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger.Named("unit").With("unit", id.String(), "property", propertyName)

	opts := []scope.Option{
		scope.WithParent(parent),
		scope.WithLogger(logger),
		scope.WithBean(dataSourcePropertiesBean()),
		scope.WithBean(dataSourceBean()),
		scope.WithBean(connectionValidatorBean()),
	}
	if _, ok := cfg.lookup.Resolve(c, config.ModuleTransaction); ok {
		opts = append(opts, scope.WithBean(transactionManagerBean()))
	}
	for _, f := range cfg.beans {
		opts = append(opts, scope.WithBean(f()))
	}

	s := scope.New(opts...)
	in := &unitInput{
		ctx:          ctx,
		config:       c,
		propertyName: propertyName,
		zone:         config.ZoneFromContext(ctx),
		provider:     p,
		logger:       logger,
	}
	if err := s.Refresh(in); err != nil {
		return nil, err
	}

	pools, ok := scope.StateOf[*Pools](s)
	if !ok {
		// Only possible if the dataSource bean was replaced.
		if err := s.Close(); err != nil {
			logger.Warn("error closing unit without pools", "err", err)
		}
		return nil, ErrNoDataSource
	}

	metrics.GaugeActiveUnits.Inc()
	logger.Debug("unit created", "pools", len(pools.List))
	return &unit{
		id:     id.String(),
		scope:  s,
		pools:  pools,
		logger: logger,
	}, nil
}

func (u *unit) ID() string { return u.id }

func (u *unit) DataSources() []NamedDataSource {
	return append([]NamedDataSource(nil), u.pools.List...)
}

// Scope returns the scope backing the unit.
func (u *unit) Scope() *scope.Scope { return u.scope }

// Scoped is implemented by units backed by a scope.
type Scoped interface {
	Scope() *scope.Scope
}

// TransactionManagerOf returns the transaction manager built by u, if any.
func TransactionManagerOf(u Unit) (*TransactionManager, bool) {
	su, ok := u.(Scoped)
	if !ok {
		return nil, false
	}

	tm, ok := scope.StateOf[*TransactionManager](su.Scope())
	if !ok || tm.DataSource == nil {
		return nil, false
	}

	return tm, true
}

func (u *unit) Close() error {
	u.closeOnce.Do(func() {
		u.closeErr = u.scope.Close()
		metrics.GaugeActiveUnits.Dec()
		u.logger.Debug("unit closed", "err", u.closeErr)
	})

	return u.closeErr
}

func dataSourcePropertiesBean() *scope.Bean {
	return scope.NewBean(
		scope.WithName(BeanDataSourceProperties),
		scope.WithState(&PropertiesState{}),
		scope.WithCreate(func(in *unitInput, st *PropertiesState) error {
			entries := in.config.DataSourceProperties(in.zone)
			if len(entries) == 0 {
				if in.zone != "" {
					return fmt.Errorf("zone %q: %w", in.zone, ErrNoDataSource)
				}
				return ErrNoDataSource
			}

			flags := make([]bool, len(entries))
			for i, props := range entries {
				st.Entries = append(st.Entries, props.Clone())
				st.Names = append(st.Names, poolName(in.config, props, i))
				flags[i] = props.Primary()
			}

			idx, err := selectIndex(flags)
			if err != nil {
				return err
			}
			st.Primary = idx

			return nil
		}),
	)
}

func poolName(c *config.Config, props config.Properties, i int) string {
	if n := strings.TrimSpace(props.Name()); n != "" {
		return n
	}

	return fmt.Sprintf("%s-%d", c.Name, i)
}

func dataSourceBean() *scope.Bean {
	return scope.NewBean(
		scope.WithName(BeanDataSource),
		scope.WithState(&Pools{}),
		scope.WithCreate(func(in *unitInput, props *PropertiesState, st *Pools) error {
			for i, entry := range props.Entries {
				name := props.Names[i]
				ds, err := in.provider.Open(in.ctx, name, entry)
				if err != nil {
					return fmt.Errorf("open data source %q: %w", name, err)
				}

				st.List = append(st.List, NamedDataSource{
					Name:       name,
					Primary:    i == props.Primary,
					Properties: entry,
					DataSource: ds,
				})
				in.logger.Trace("opened data source", "name", name)
			}

			return nil
		}),
		scope.WithDestroy(func(st *Pools) error {
			var result error
			for _, ds := range st.List {
				if err := ds.DataSource.Close(); err != nil {
					result = multierror.Append(result, fmt.Errorf(
						"close data source %q: %w", ds.Name, err))
				}
			}

			return result
		}),
	)
}

func connectionValidatorBean() *scope.Bean {
	return scope.NewBean(
		scope.WithName(BeanConnectionValidator),
		scope.WithCreate(func(in *unitInput, pools *Pools) error {
			for _, ds := range pools.List {
				query := strings.TrimSpace(ds.Properties.String(KeyConnectionTestQuery))
				if query == "" {
					continue
				}

				if err := testConnection(in.ctx, ds.DataSource, query); err != nil {
					return fmt.Errorf("test connection of data source %q: %w", ds.Name, err)
				}
			}

			return nil
		}),
	)
}

func testConnection(ctx context.Context, ds DataSource, query string) error {
	conn, err := ds.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, query)
	return err
}

func transactionManagerBean() *scope.Bean {
	return scope.NewBean(
		scope.WithName(BeanTransactionManager),
		scope.WithState(&TransactionManager{}),
		scope.WithCreate(func(in *unitInput, pools *Pools, st *TransactionManager) error {
			tx := in.config.Transaction
			if tx == nil {
				return nil
			}

			primary, err := Select(pools.List)
			if err != nil {
				return err
			}

			level, err := isolationLevel(tx.Isolation)
			if err != nil {
				return err
			}

			st.Name = tx.Name
			st.Timeout = tx.Timeout
			st.Options = sql.TxOptions{Isolation: level, ReadOnly: tx.ReadOnly}
			st.DataSource = primary.DataSource
			return nil
		}),
	)
}

func isolationLevel(s string) (sql.IsolationLevel, error) {
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	switch normalized {
	case "", "default":
		return sql.LevelDefault, nil
	case "readuncommitted":
		return sql.LevelReadUncommitted, nil
	case "readcommitted":
		return sql.LevelReadCommitted, nil
	case "repeatableread":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	}

	return sql.LevelDefault, fmt.Errorf("unknown transaction isolation %q", s)
}
