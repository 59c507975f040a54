// Package datasource activates dynamic data sources.
//
// A DynamicDataSource is a stable handle in front of a delegate pool. Each
// activation builds the delegate inside a fresh Unit, publishes it
// atomically and retires the previous Unit after a grace delay so that
// work already holding the old pool can finish.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
)

var (
	// ErrNotActive is returned by a DynamicDataSource that has not been
	// activated yet.
	ErrNotActive = errors.New("dynamic data source is not active")

	// ErrClosed is returned by a DynamicDataSource after Close.
	ErrClosed = errors.New("dynamic data source is closed")

	// ErrNoDataSource is returned when a configuration produces no pool.
	ErrNoDataSource = errors.New("no data source defined")

	// ErrAmbiguousDataSource is returned when more than one pool is
	// marked primary.
	ErrAmbiguousDataSource = errors.New("more than one data source is marked primary")
)

// DataSource is a handle that produces database connections.
type DataSource interface {
	// Conn returns a connection. The caller must close it.
	Conn(ctx context.Context) (*sql.Conn, error)

	// ConnWithCredentials returns a connection for the given user.
	ConnWithCredentials(ctx context.Context, username, password string) (*sql.Conn, error)

	LogWriter() io.Writer
	SetLogWriter(w io.Writer)

	LoginTimeout() time.Duration
	SetLoginTimeout(d time.Duration)

	// ParentLogger returns the logger the data source logs to.
	ParentLogger() hclog.Logger

	// Unwrap sets target, which must be a non-nil pointer, to the
	// underlying value of that type and reports whether it did.
	Unwrap(target interface{}) bool

	// IsWrapperFor reports whether Unwrap would succeed for target.
	IsWrapperFor(target interface{}) bool

	// Close releases the pool.
	Close() error
}

// Provider opens pools from data source properties.
type Provider interface {
	Open(ctx context.Context, name string, props config.Properties) (DataSource, error)
}

// ProviderFunc is a Provider implemented by a function.
type ProviderFunc func(ctx context.Context, name string, props config.Properties) (DataSource, error)

func (f ProviderFunc) Open(ctx context.Context, name string, props config.Properties) (DataSource, error) {
	return f(ctx, name, props)
}

// ActivationError is returned when a configuration could not be
// activated. The previously active delegate, if any, is still in use.
type ActivationError struct {
	PropertyName string
	Err          error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("failed to activate dynamic data source %q: %s", e.PropertyName, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }
