package datasource_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/config/configtest"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource/datasourcetest"
	"github.com/hashicorp/dynamic-datasource-sdk/env"
	"github.com/hashicorp/dynamic-datasource-sdk/framework/scope"
)

func single(name string) *config.Config {
	return &config.Config{
		Name:       "test",
		DataSource: []config.Properties{{"name": name, "url": "jdbc:mysql://localhost/" + name}},
	}
}

func TestDynamicDataSource_delegates(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	errConn := errors.New("conn")
	logger := hclog.NewNullLogger()
	var buf bytes.Buffer

	p := &datasourcetest.Provider{
		Setup: func(ds *datasourcetest.DataSource) {
			ds.On("Conn", mock.Anything).Return(nil, errConn)
			ds.On("ConnWithCredentials", mock.Anything, "u", "p").Return(nil, errConn)
			ds.On("LogWriter").Return(&buf)
			ds.On("SetLogWriter", &buf).Return()
			ds.On("LoginTimeout").Return(5 * time.Second)
			ds.On("SetLoginTimeout", 3*time.Second).Return()
			ds.On("ParentLogger").Return(logger)
			ds.On("Unwrap", mock.Anything).Return(true)
			ds.On("IsWrapperFor", mock.Anything).Return(true)
		},
	}

	d := datasource.New("test", single("a"), datasource.NewUnitFactory(p))
	defer d.Close()
	require.NoError(d.Initialize(ctx))

	_, err := d.Conn(ctx)
	require.ErrorIs(err, errConn)
	_, err = d.ConnWithCredentials(ctx, "u", "p")
	require.ErrorIs(err, errConn)
	require.Same(&buf, d.LogWriter())
	d.SetLogWriter(&buf)
	require.Equal(5*time.Second, d.LoginTimeout())
	d.SetLoginTimeout(3 * time.Second)
	require.Equal(logger, d.ParentLogger())

	var target interface{}
	require.True(d.Unwrap(&target))
	require.True(d.IsWrapperFor(&target))

	opened := p.Opened()
	require.Len(opened, 1)
	opened[0].AssertExpectations(t)
}

func TestDynamicDataSource_activate(t *testing.T) {
	ctx := context.Background()

	t.Run("swaps the delegate and disposes the old unit", func(t *testing.T) {
		require := require.New(t)

		p := &datasourcetest.Provider{}
		d := datasource.New("test", single("a"), datasource.NewUnitFactory(p),
			datasource.WithCloseDelay(10*time.Millisecond))
		defer d.Close()

		require.NoError(d.Initialize(ctx))
		first, ok := d.Delegate()
		require.True(ok)
		firstUnit := d.Unit()

		require.NoError(d.Activate(ctx, single("b"), "test2"))
		second, ok := d.Delegate()
		require.True(ok)
		require.NotSame(first, second)
		require.NotEqual(firstUnit.ID(), d.Unit().ID())
		require.Equal("test2", d.PropertyName())

		opened := p.Opened()
		require.Len(opened, 2)
		require.Same(opened[1], second)

		require.Eventually(func() bool {
			return opened[0].Closes() == 1 && d.Retiring() == 0
		}, time.Second, 5*time.Millisecond)
		require.Equal(0, opened[1].Closes())
	})

	t.Run("failure keeps the delegate", func(t *testing.T) {
		require := require.New(t)

		p := &datasourcetest.Provider{
			Fail: map[string]error{"broken": errors.New("connection refused")},
		}
		d := datasource.New("test", single("a"), datasource.NewUnitFactory(p))
		defer d.Close()
		require.NoError(d.Initialize(ctx))
		before, _ := d.Delegate()

		err := d.Activate(ctx, single("broken"), "test")
		require.Error(err)

		var aerr *datasource.ActivationError
		require.ErrorAs(err, &aerr)
		require.Equal("test", aerr.PropertyName)

		after, ok := d.Delegate()
		require.True(ok)
		require.Same(before, after)
		require.Equal(0, d.Retiring())
		require.Equal(0, p.Opened()[0].Closes())
	})

	t.Run("failed first activation leaves it inactive", func(t *testing.T) {
		require := require.New(t)

		d := datasource.New("test", &config.Config{Name: "empty"},
			datasource.NewUnitFactory(&datasourcetest.Provider{}))
		defer d.Close()

		require.Error(d.Initialize(ctx))
		_, ok := d.Delegate()
		require.False(ok)
		require.Nil(d.Unit())
	})

	t.Run("factory returning an unusable unit", func(t *testing.T) {
		require := require.New(t)

		u := &fakeUnit{id: "empty"}
		factory := func(context.Context, *config.Config, string, *scope.Scope) (datasource.Unit, error) {
			return u, nil
		}

		d := datasource.New("test", single("a"), factory)
		defer d.Close()

		err := d.Initialize(ctx)
		require.ErrorIs(err, datasource.ErrNoDataSource)
		require.Equal(1, u.closes)
	})
}

func TestDynamicDataSource_concurrentActivate(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	errConn := errors.New("conn")
	p := &datasourcetest.Provider{
		Setup: func(ds *datasourcetest.DataSource) {
			ds.On("Conn", mock.Anything).Return(nil, errConn)
			ds.On("LoginTimeout").Return(time.Second)
		},
	}

	d := datasource.New("test", single("ds-0"), datasource.NewUnitFactory(p),
		datasource.WithCloseDelay(time.Millisecond))
	require.NoError(d.Initialize(ctx))

	const readers = 8
	stop := make(chan struct{})
	errs := make(chan error, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				if _, err := d.Conn(ctx); !errors.Is(err, errConn) {
					errs <- fmt.Errorf("unexpected conn error: %v", err)
					return
				}
				if got := d.LoginTimeout(); got != time.Second {
					errs <- fmt.Errorf("unexpected login timeout: %s", got)
					return
				}
			}
		}()
	}

	for i := 1; i <= 50; i++ {
		require.NoError(d.Activate(ctx, single(fmt.Sprintf("ds-%d", i)), "test"))
	}

	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	require.NoError(d.Close())

	opened := p.Opened()
	require.Len(opened, 51)
	for _, ds := range opened {
		require.Equal(1, ds.Closes(), ds.Name)
	}
}

func TestDynamicDataSource_inactive(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	d := datasource.New("test", single("a"), datasource.NewUnitFactory(&datasourcetest.Provider{}))

	_, err := d.Conn(ctx)
	require.ErrorIs(err, datasource.ErrNotActive)
	_, err = d.ConnWithCredentials(ctx, "u", "p")
	require.ErrorIs(err, datasource.ErrNotActive)
	require.Nil(d.LogWriter())
	require.Zero(d.LoginTimeout())
	require.NotNil(d.ParentLogger())
	require.False(d.Unwrap(new(interface{})))
	require.False(d.IsWrapperFor(new(interface{})))

	// No-ops without a delegate.
	d.SetLogWriter(nil)
	d.SetLoginTimeout(time.Second)

	require.NoError(d.Close())
}

func TestDynamicDataSource_close(t *testing.T) {
	ctx := context.Background()

	t.Run("disposes current and retiring units", func(t *testing.T) {
		require := require.New(t)

		p := &datasourcetest.Provider{}
		d := datasource.New("test", single("a"), datasource.NewUnitFactory(p),
			datasource.WithCloseDelay(time.Hour))

		require.NoError(d.Initialize(ctx))
		require.NoError(d.Activate(ctx, single("b"), "test"))
		require.Equal(1, d.Retiring())

		require.NoError(d.Close())
		require.Equal(0, d.Retiring())
		for _, ds := range p.Opened() {
			require.Equal(1, ds.Closes())
		}

		// Idempotent.
		require.NoError(d.Close())
		for _, ds := range p.Opened() {
			require.Equal(1, ds.Closes())
		}
	})

	t.Run("closed data source", func(t *testing.T) {
		require := require.New(t)

		d := datasource.New("test", single("a"), datasource.NewUnitFactory(&datasourcetest.Provider{}))
		require.NoError(d.Initialize(ctx))
		require.NoError(d.Close())

		_, err := d.Conn(ctx)
		require.ErrorIs(err, datasource.ErrClosed)
		require.ErrorIs(d.Activate(ctx, single("b"), "test"), datasource.ErrClosed)
	})

	t.Run("returns the error of the current unit", func(t *testing.T) {
		p := &datasourcetest.Provider{CloseErr: errors.New("busy")}
		d := datasource.New("test", single("a"), datasource.NewUnitFactory(p))
		require.NoError(t, d.Initialize(ctx))

		err := d.Close()
		require.Error(t, err)
		require.Contains(t, err.Error(), "busy")
	})
}

func TestDynamicDataSource_closeDelay(t *testing.T) {
	factory := datasource.NewUnitFactory(&datasourcetest.Provider{})

	cases := []struct {
		Name string
		Opts []datasource.Option
		Want time.Duration
	}{
		{"default", nil, datasource.DefaultCloseDelay},
		{
			"environment milliseconds",
			[]datasource.Option{datasource.WithEnvironment(env.FromMap(map[string]interface{}{
				datasource.CloseDelayProperty: "250",
			}))},
			250 * time.Millisecond,
		},
		{
			"environment duration",
			[]datasource.Option{datasource.WithEnvironment(env.FromMap(map[string]interface{}{
				datasource.CloseDelayProperty: "2s",
			}))},
			2 * time.Second,
		},
		{
			"environment without the property",
			[]datasource.Option{datasource.WithEnvironment(env.FromMap(nil))},
			datasource.DefaultCloseDelay,
		},
		{
			"option wins",
			[]datasource.Option{
				datasource.WithEnvironment(env.FromMap(map[string]interface{}{
					datasource.CloseDelayProperty: "2s",
				})),
				datasource.WithCloseDelay(time.Millisecond),
			},
			time.Millisecond,
		},
	}

	for _, tt := range cases {
		t.Run(tt.Name, func(t *testing.T) {
			d := datasource.New("test", configtest.Config(t, configtest.Plain), factory, tt.Opts...)
			require.Equal(t, tt.Want, d.CloseDelay())
		})
	}
}

// fakeUnit is a Unit without any data source.
type fakeUnit struct {
	id     string
	closes int
}

func (u *fakeUnit) ID() string                                { return u.id }
func (u *fakeUnit) DataSources() []datasource.NamedDataSource { return nil }
func (u *fakeUnit) Close() error                              { u.closes++; return nil }
