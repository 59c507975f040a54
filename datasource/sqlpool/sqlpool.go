// Package sqlpool opens database/sql pools from data source properties.
//
// Properties use the key names of a HikariCP pool configuration. The pool
// size keys map onto the limits of *sql.DB and the JDBC url is translated
// for the MySQL and PostgreSQL drivers.
package sqlpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-hclog"
	"github.com/lib/pq"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource"
)

// Pool property keys.
const (
	KeyJdbcURL           = "jdbcUrl"
	KeyMaximumPoolSize   = "maximumPoolSize"
	KeyMinimumIdle       = "minimumIdle"
	KeyMaxLifetime       = "maxLifetime"
	KeyIdleTimeout       = "idleTimeout"
	KeyConnectionTimeout = "connectionTimeout"
)

// ErrCredentialsUnsupported is returned by ConnWithCredentials. A pool
// always connects with the credentials it was opened with.
var ErrCredentialsUnsupported = errors.New("connections with explicit credentials are not supported")

// Connector builds a driver connector from data source properties.
type Connector func(props config.Properties) (driver.Connector, error)

// Provider is a datasource.Provider opening *sql.DB pools.
type Provider struct {
	logger     hclog.Logger
	connectors map[string]Connector
	drivers    map[string]string
}

// New returns a Provider that knows the mysql and postgresql
// subprotocols.
func New(opts ...Option) *Provider {
	p := &Provider{
		logger: hclog.L(),
		connectors: map[string]Connector{
			"mysql":      mysqlConnector,
			"mariadb":    mysqlConnector,
			"postgresql": postgresConnector,
			"postgres":   postgresConnector,
		},
		drivers: map[string]string{
			"com.mysql.cj.jdbc.Driver": "mysql",
			"com.mysql.jdbc.Driver":    "mysql",
			"org.mariadb.jdbc.Driver":  "mariadb",
			"org.postgresql.Driver":    "postgresql",
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.Named("sqlpool")
	return p
}

// Open opens a pool. No connection is made until one is needed.
func (p *Provider) Open(_ context.Context, name string, props config.Properties) (datasource.DataSource, error) {
	subprotocol, err := p.subprotocol(props)
	if err != nil {
		return nil, err
	}

	connect, ok := p.connectors[subprotocol]
	if !ok {
		return nil, fmt.Errorf("unsupported database %q", subprotocol)
	}

	c, err := connect(props)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	configure(db, props)

	logger := p.logger.With("datasource", name, "database", subprotocol)
	logger.Debug("opened pool",
		"max_open", props.Int(KeyMaximumPoolSize, 0),
		"max_idle", props.Int(KeyMinimumIdle, 0))

	return &Pool{
		name:         name,
		db:           db,
		logger:       logger,
		loginTimeout: props.Duration(KeyConnectionTimeout, 0),
	}, nil
}

func (p *Provider) subprotocol(props config.Properties) (string, error) {
	if raw := jdbcURL(props); raw != "" {
		u, err := ParseURL(raw)
		if err != nil {
			return "", err
		}

		return u.Subprotocol, nil
	}

	if d, ok := p.drivers[props.String(config.KeyDriverClassName)]; ok {
		return d, nil
	}

	return "", fmt.Errorf("data source has no url")
}

// configure applies the pool size keys to db.
func configure(db *sql.DB, props config.Properties) {
	if n := props.Int(KeyMaximumPoolSize, 0); n > 0 {
		db.SetMaxOpenConns(n)
	}
	if n := props.Int(KeyMinimumIdle, -1); n >= 0 {
		db.SetMaxIdleConns(n)
	}
	if d := props.Duration(KeyMaxLifetime, 0); d > 0 {
		db.SetConnMaxLifetime(d)
	}
	if d := props.Duration(KeyIdleTimeout, 0); d > 0 {
		db.SetConnMaxIdleTime(d)
	}
}

func mysqlConnector(props config.Properties) (driver.Connector, error) {
	cfg, err := MySQLConfig(props)
	if err != nil {
		return nil, err
	}

	return mysql.NewConnector(cfg)
}

func postgresConnector(props config.Properties) (driver.Connector, error) {
	dsn, err := PostgresDSN(props)
	if err != nil {
		return nil, err
	}

	return pq.NewConnector(dsn)
}

// Pool is a datasource.DataSource backed by a *sql.DB.
type Pool struct {
	name string
	db   *sql.DB

	mu           sync.RWMutex
	logger       hclog.Logger
	logWriter    io.Writer
	loginTimeout time.Duration
}

// DB returns the underlying pool.
func (p *Pool) DB() *sql.DB { return p.db }

// Conn returns a connection from the pool. Acquiring it is bounded by the
// login timeout if one is set.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	if timeout := p.LoginTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return p.db.Conn(ctx)
}

func (p *Pool) ConnWithCredentials(context.Context, string, string) (*sql.Conn, error) {
	return nil, ErrCredentialsUnsupported
}

func (p *Pool) LogWriter() io.Writer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logWriter
}

// SetLogWriter sends the pool's log output to w. A nil w restores the
// default logger.
func (p *Pool) SetLogWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logWriter = w
	if w == nil {
		p.logger = hclog.L().Named("sqlpool").With("datasource", p.name)
		return
	}

	p.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "sqlpool",
		Level:  hclog.Info,
		Output: w,
	}).With("datasource", p.name)
}

func (p *Pool) LoginTimeout() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loginTimeout
}

func (p *Pool) SetLoginTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginTimeout = d
}

func (p *Pool) ParentLogger() hclog.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger
}

// Unwrap supports **sql.DB and **Pool targets.
func (p *Pool) Unwrap(target interface{}) bool {
	switch t := target.(type) {
	case **sql.DB:
		*t = p.db
	case **Pool:
		*t = p
	default:
		return false
	}

	return true
}

func (p *Pool) IsWrapperFor(target interface{}) bool {
	switch target.(type) {
	case **sql.DB, **Pool:
		return true
	}

	return false
}

func (p *Pool) Close() error {
	if err := p.db.Close(); err != nil {
		return err
	}

	p.ParentLogger().Debug("closed pool")
	return nil
}

var (
	_ datasource.DataSource = (*Pool)(nil)
	_ datasource.Provider   = (*Provider)(nil)
)

// Option is used to configure New.
type Option func(*Provider)

// WithLogger specifies the logger to use. If this is not set then this
// will use the default hclog logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithConnector registers c for a JDBC subprotocol, replacing any
// existing connector for it.
func WithConnector(subprotocol string, c Connector) Option {
	return func(p *Provider) { p.connectors[strings.ToLower(subprotocol)] = c }
}

// WithDriverClass maps a JDBC driver class name to a subprotocol. It is
// used when a data source has no url.
func WithDriverClass(class, subprotocol string) Option {
	return func(p *Provider) { p.drivers[class] = strings.ToLower(subprotocol) }
}
