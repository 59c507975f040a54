package datasource

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/env"
	"github.com/hashicorp/dynamic-datasource-sdk/framework/scope"
	"github.com/hashicorp/dynamic-datasource-sdk/internal/metrics"
)

// CloseDelayProperty is the host property holding the grace delay before
// a retired unit is disposed.
const CloseDelayProperty = "dynamic.datasource.child-context.close-delay"

// DefaultCloseDelay is used when neither WithCloseDelay nor
// CloseDelayProperty is set.
const DefaultCloseDelay = 30 * time.Second

// DynamicDataSource is a DataSource whose delegate can be replaced at
// runtime.
//
// Every DataSource method calls the delegate that is current at the time
// of the call. Activate builds a new Unit, publishes its pool as the
// delegate and disposes the previous Unit once the close delay has
// passed. Activations are serialized. If an activation fails the current
// delegate is kept.
type DynamicDataSource struct {
	propertyName string
	config       *config.Config
	factory      UnitFactory
	parent       *scope.Scope
	env          env.Environment
	closeDelay   *time.Duration
	logger       hclog.Logger

	current atomic.Pointer[generation]
	closed  atomic.Bool

	// mu serializes Activate and Close and guards retiring.
	mu       sync.Mutex
	retiring map[string]*retirement
	wg       sync.WaitGroup
}

// generation is one published delegate and the unit that owns it.
type generation struct {
	name     string
	delegate DataSource
	unit     Unit
}

type retirement struct {
	unit  Unit
	timer *time.Timer
}

// New returns a DynamicDataSource for the configuration stored at
// propertyName. It is not active until Initialize or Activate succeeds.
func New(propertyName string, c *config.Config, factory UnitFactory, opts ...Option) *DynamicDataSource {
	d := &DynamicDataSource{
		propertyName: propertyName,
		config:       c,
		factory:      factory,
		logger:       hclog.L(),
		retiring:     map[string]*retirement{},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.logger.Named("datasource").With("property", propertyName)
	return d
}

// Initialize activates the configuration given to New.
func (d *DynamicDataSource) Initialize(ctx context.Context) error {
	d.mu.Lock()
	c, propertyName := d.config, d.propertyName
	d.mu.Unlock()

	return d.Activate(ctx, c, propertyName)
}

// Activate builds a unit for c and makes its pool the delegate. The
// previous unit, if any, is disposed after the close delay.
func (d *DynamicDataSource) Activate(ctx context.Context, c *config.Config, propertyName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	err := d.activate(ctx, c, propertyName)
	metrics.CounterActivations.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		d.logger.Error("activation failed, keeping current data source", "err", err)
		return err
	}

	d.logger.Info("activated data source",
		"delegate", d.current.Load().name,
		"unit", d.current.Load().unit.ID(),
		"duration", time.Since(start))
	return nil
}

func (d *DynamicDataSource) activate(ctx context.Context, c *config.Config, propertyName string) error {
	u, err := d.factory(ctx, c, propertyName, d.parent)
	if err != nil {
		return &ActivationError{PropertyName: propertyName, Err: err}
	}

	selected, err := Select(u.DataSources())
	if err != nil {
		if cerr := u.Close(); cerr != nil {
			d.logger.Warn("error closing unusable unit", "unit", u.ID(), "err", cerr)
		}

		return &ActivationError{PropertyName: propertyName, Err: err}
	}

	prev := d.current.Swap(&generation{
		name:     selected.Name,
		delegate: selected.DataSource,
		unit:     u,
	})
	d.config = c
	d.propertyName = propertyName

	if prev != nil {
		d.retire(prev.unit)
	}

	return nil
}

// retire schedules u for disposal. d.mu must be held.
func (d *DynamicDataSource) retire(u Unit) {
	delay := d.CloseDelay()
	r := &retirement{unit: u}
	d.retiring[u.ID()] = r
	d.wg.Add(1)

	d.logger.Debug("retiring unit", "unit", u.ID(), "delay", delay)
	r.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		_, ok := d.retiring[u.ID()]
		delete(d.retiring, u.ID())
		d.mu.Unlock()

		// Close took it over.
		if !ok {
			return
		}

		d.dispose(u)
		d.wg.Done()
	})
}

func (d *DynamicDataSource) dispose(u Unit) {
	err := u.Close()
	metrics.CounterDisposals.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		d.logger.Error("error disposing unit", "unit", u.ID(), "err", err)
		return
	}

	d.logger.Debug("disposed unit", "unit", u.ID())
}

// CloseDelay returns the grace delay before a retired unit is disposed.
func (d *DynamicDataSource) CloseDelay() time.Duration {
	if d.closeDelay != nil {
		return *d.closeDelay
	}

	if d.env != nil {
		return d.env.Duration(CloseDelayProperty, DefaultCloseDelay)
	}

	return DefaultCloseDelay
}

// PropertyName returns the property key of the active configuration.
func (d *DynamicDataSource) PropertyName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.propertyName
}

// Delegate returns the current delegate and whether there is one.
func (d *DynamicDataSource) Delegate() (DataSource, bool) {
	g := d.current.Load()
	if g == nil {
		return nil, false
	}

	return g.delegate, true
}

// Unit returns the unit owning the current delegate, or nil.
func (d *DynamicDataSource) Unit() Unit {
	g := d.current.Load()
	if g == nil {
		return nil
	}

	return g.unit
}

// Retiring returns the number of retired units not yet disposed.
func (d *DynamicDataSource) Retiring() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.retiring)
}

// Close disposes the current unit and every retired unit without waiting
// for their close delay. Calling Close more than once is a no-op.
func (d *DynamicDataSource) Close() error {
	d.mu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.mu.Unlock()
		return nil
	}

	pending := make([]*retirement, 0, len(d.retiring))
	for id, r := range d.retiring {
		pending = append(pending, r)
		delete(d.retiring, id)
	}
	g := d.current.Swap(nil)
	d.mu.Unlock()

	var result error
	for _, r := range pending {
		r.timer.Stop()
		d.dispose(r.unit)
		d.wg.Done()
	}

	if g != nil {
		result = g.unit.Close()
		metrics.CounterDisposals.WithLabelValues(metrics.Result(result)).Inc()
	}

	// Wait for disposals that had already started.
	d.wg.Wait()
	return result
}

func (d *DynamicDataSource) load() (*generation, error) {
	if g := d.current.Load(); g != nil {
		return g, nil
	}

	if d.closed.Load() {
		return nil, ErrClosed
	}

	return nil, ErrNotActive
}

func (d *DynamicDataSource) Conn(ctx context.Context) (*sql.Conn, error) {
	g, err := d.load()
	if err != nil {
		return nil, err
	}

	return g.delegate.Conn(ctx)
}

func (d *DynamicDataSource) ConnWithCredentials(ctx context.Context, username, password string) (*sql.Conn, error) {
	g, err := d.load()
	if err != nil {
		return nil, err
	}

	return g.delegate.ConnWithCredentials(ctx, username, password)
}

// LogWriter returns nil when there is no delegate.
func (d *DynamicDataSource) LogWriter() io.Writer {
	if g, err := d.load(); err == nil {
		return g.delegate.LogWriter()
	}

	return nil
}

// SetLogWriter does nothing when there is no delegate.
func (d *DynamicDataSource) SetLogWriter(w io.Writer) {
	if g, err := d.load(); err == nil {
		g.delegate.SetLogWriter(w)
	}
}

// LoginTimeout returns zero when there is no delegate.
func (d *DynamicDataSource) LoginTimeout() time.Duration {
	if g, err := d.load(); err == nil {
		return g.delegate.LoginTimeout()
	}

	return 0
}

// SetLoginTimeout does nothing when there is no delegate.
func (d *DynamicDataSource) SetLoginTimeout(timeout time.Duration) {
	if g, err := d.load(); err == nil {
		g.delegate.SetLoginTimeout(timeout)
	}
}

// ParentLogger returns the logger of the data source itself when there is
// no delegate.
func (d *DynamicDataSource) ParentLogger() hclog.Logger {
	if g, err := d.load(); err == nil {
		return g.delegate.ParentLogger()
	}

	return d.logger
}

func (d *DynamicDataSource) Unwrap(target interface{}) bool {
	if g, err := d.load(); err == nil {
		return g.delegate.Unwrap(target)
	}

	return false
}

func (d *DynamicDataSource) IsWrapperFor(target interface{}) bool {
	if g, err := d.load(); err == nil {
		return g.delegate.IsWrapperFor(target)
	}

	return false
}

var _ DataSource = (*DynamicDataSource)(nil)

// Option is used to configure New.
type Option func(*DynamicDataSource)

// WithLogger specifies the logger to use. If this is not set then this
// will use the default hclog logger.
func WithLogger(l hclog.Logger) Option {
	return func(d *DynamicDataSource) { d.logger = l }
}

// WithParentScope sets the scope every unit is a child of.
func WithParentScope(s *scope.Scope) Option {
	return func(d *DynamicDataSource) { d.parent = s }
}

// WithEnvironment sets the environment CloseDelayProperty is read from.
func WithEnvironment(e env.Environment) Option {
	return func(d *DynamicDataSource) { d.env = e }
}

// WithCloseDelay fixes the close delay, ignoring CloseDelayProperty.
func WithCloseDelay(delay time.Duration) Option {
	return func(d *DynamicDataSource) { d.closeDelay = &delay }
}
