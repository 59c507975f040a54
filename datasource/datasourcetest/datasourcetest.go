// Package datasourcetest has fakes of datasource.DataSource and
// datasource.Provider for tests.
package datasourcetest

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource"
)

// DataSource is a mock data source. Every method except Close must be set
// up with On before it is called.
type DataSource struct {
	mock.Mock

	Name       string
	Properties config.Properties

	// CloseErr is returned by Close.
	CloseErr error

	closes int32
}

func (m *DataSource) Conn(ctx context.Context) (*sql.Conn, error) {
	args := m.Called(ctx)
	conn, _ := args.Get(0).(*sql.Conn)
	return conn, args.Error(1)
}

func (m *DataSource) ConnWithCredentials(ctx context.Context, username, password string) (*sql.Conn, error) {
	args := m.Called(ctx, username, password)
	conn, _ := args.Get(0).(*sql.Conn)
	return conn, args.Error(1)
}

func (m *DataSource) LogWriter() io.Writer {
	w, _ := m.Called().Get(0).(io.Writer)
	return w
}

func (m *DataSource) SetLogWriter(w io.Writer) {
	m.Called(w)
}

func (m *DataSource) LoginTimeout() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

func (m *DataSource) SetLoginTimeout(d time.Duration) {
	m.Called(d)
}

func (m *DataSource) ParentLogger() hclog.Logger {
	l, _ := m.Called().Get(0).(hclog.Logger)
	return l
}

func (m *DataSource) Unwrap(target interface{}) bool {
	return m.Called(target).Bool(0)
}

func (m *DataSource) IsWrapperFor(target interface{}) bool {
	return m.Called(target).Bool(0)
}

// Close records the call and returns CloseErr.
func (m *DataSource) Close() error {
	atomic.AddInt32(&m.closes, 1)
	return m.CloseErr
}

// Closes returns how many times Close was called.
func (m *DataSource) Closes() int {
	return int(atomic.LoadInt32(&m.closes))
}

var _ datasource.DataSource = (*DataSource)(nil)

// Provider opens a new DataSource for every call to Open.
type Provider struct {
	// Fail maps a data source name to the error opening it returns.
	Fail map[string]error

	// CloseErr is set on every opened DataSource.
	CloseErr error

	// Setup, if set, is called with every DataSource before it is returned.
	// It is where mock expectations are set.
	Setup func(ds *DataSource)

	mu     sync.Mutex
	opened []*DataSource
}

func (p *Provider) Open(_ context.Context, name string, props config.Properties) (datasource.DataSource, error) {
	if err := p.Fail[name]; err != nil {
		return nil, err
	}

	ds := &DataSource{Name: name, Properties: props, CloseErr: p.CloseErr}
	if p.Setup != nil {
		p.Setup(ds)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, ds)
	return ds, nil
}

// Opened returns every DataSource opened so far, in order.
func (p *Provider) Opened() []*DataSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*DataSource(nil), p.opened...)
}

var _ datasource.Provider = (*Provider)(nil)
