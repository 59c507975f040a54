package postprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/config/configtest"
	"github.com/hashicorp/dynamic-datasource-sdk/env"
)

func TestNameProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("fills a missing name", func(t *testing.T) {
		c := configtest.Config(t, configtest.WithoutName)
		require.Empty(t, c.Name)

		Chain{NameProcessor{}}.PostProcess(ctx, c, config.PropertyName("test"))
		require.Equal(t, "test", c.Name)
	})

	t.Run("keeps an explicit name", func(t *testing.T) {
		c := &config.Config{Name: "explicit"}

		Chain{NameProcessor{}}.PostProcess(ctx, c, config.PropertyName("test"))
		require.Equal(t, "explicit", c.Name)
	})
}

func TestModuleProcessor(t *testing.T) {
	ctx := context.Background()

	newProcessor := func(calls *int) *ModuleProcessor {
		return &ModuleProcessor{
			Module: config.ModuleTransaction,
			Process: func(_ context.Context, c *config.Config, _, module string) {
				*calls++
				c.Name = "postProcessed"
				require.Equal(t, config.ModuleTransaction, module)
			},
		}
	}

	t.Run("module present", func(t *testing.T) {
		var calls int
		c := &config.Config{Name: "noProcessed", Transaction: &config.Transaction{}}

		Chain{newProcessor(&calls)}.PostProcess(ctx, c, "p")
		require.Equal(t, "postProcessed", c.Name)
		require.Equal(t, 1, calls)
	})

	t.Run("module absent", func(t *testing.T) {
		var calls int
		c := &config.Config{
			Name:       "noProcessed",
			DataSource: []config.Properties{{"url": "jdbc:mysql://localhost/db"}},
		}
		before := *c

		Chain{newProcessor(&calls)}.PostProcess(ctx, c, "p")
		require.Equal(t, before, *c)
		require.Zero(t, calls)
	})
}

func TestConfigurationProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("names the module and runs", func(t *testing.T) {
		require := require.New(t)

		c := &config.Config{Name: "test", Transaction: &config.Transaction{}}
		p := &ConfigurationProcessor[*config.Transaction]{
			Module: config.ModuleTransaction,
			Process: func(_ context.Context, c *config.Config, _, _ string, tx *config.Transaction) {
				tx.Customizers = "customizers"
			},
		}

		require.True(p.Supports(ctx, c, "test"))
		require.Empty(c.Transaction.Customizers)

		p.PostProcess(ctx, c, "test")
		require.Equal("test.transaction", c.Transaction.Name)
		require.Equal("customizers", c.Transaction.Customizers)
	})

	t.Run("module not set", func(t *testing.T) {
		p := &ConfigurationProcessor[*config.Transaction]{Module: config.ModuleTransaction}
		require.False(t, p.Supports(ctx, &config.Config{Name: "test"}, "test"))
	})

	t.Run("module unknown", func(t *testing.T) {
		p := &ConfigurationProcessor[*config.Transaction]{Module: "ModuleNotExistConfig"}
		require.False(t, p.Supports(ctx, &config.Config{Transaction: &config.Transaction{}}, "test"))
	})

	t.Run("module of another type", func(t *testing.T) {
		p := &ConfigurationProcessor[*config.Mapper]{Module: config.ModuleTransaction}
		require.False(t, p.Supports(ctx, &config.Config{Transaction: &config.Transaction{}}, "test"))
	})
}

func TestNewTransactionProcessor(t *testing.T) {
	ctx := context.Background()
	e := env.FromMap(map[string]interface{}{TransactionTimeoutProperty: "10s"})

	t.Run("default timeout", func(t *testing.T) {
		c := &config.Config{Name: "test", Transaction: &config.Transaction{}}
		Chain{NewTransactionProcessor(nil, e)}.PostProcess(ctx, c, "p")
		require.Equal(t, 10*time.Second, c.Transaction.Timeout)
		require.Equal(t, "test.transaction", c.Transaction.Name)
	})

	t.Run("explicit timeout", func(t *testing.T) {
		c := &config.Config{Name: "test", Transaction: &config.Transaction{Timeout: time.Minute}}
		Chain{NewTransactionProcessor(nil, e)}.PostProcess(ctx, c, "p")
		require.Equal(t, time.Minute, c.Transaction.Timeout)
	})
}

func TestModuleNaming(t *testing.T) {
	require := require.New(t)

	c := configtest.Config(t, configtest.Full)
	c.Mapper.Packages = append(c.Mapper.Packages, " ", "")

	Chain{
		NewTransactionProcessor(nil, nil),
		NewShardingProcessor(nil),
		NewMapperProcessor(nil),
	}.PostProcess(context.Background(), c, "p")

	require.Equal("test-dynamic-jdbc.transaction", c.Transaction.Name)
	require.Equal("test-dynamic-jdbc.sharding", c.Sharding.Name)
	require.Equal("test-dynamic-jdbc.mapper", c.Mapper.Name)
	require.Equal([]string{"io.example.mapper"}, c.Mapper.Packages)
}

func TestPropertyKeyProcessor(t *testing.T) {
	require := require.New(t)

	c := &config.Config{
		DataSource: []config.Properties{
			{
				"driver-class-name":   "com.mysql.cj.jdbc.Driver",
				"maximum_pool_size":   "5",
				"USERNAME":            "root",
				"connectionTestQuery": "SELECT 1",
			},
			{
				"driverClassName":   "explicit",
				"driver-class-name": "relaxed",
			},
		},
		HighAvailabilityDataSource: map[string][]config.Properties{
			"zone-1": {{"driverclassname": "org.postgresql.Driver"}},
		},
	}

	p := PropertyKeyProcessor{}
	require.True(p.Supports(context.Background(), c, "p"))
	p.PostProcess(context.Background(), c, "p")

	require.Equal(config.Properties{
		"driverClassName":     "com.mysql.cj.jdbc.Driver",
		"maximumPoolSize":     "5",
		"username":            "root",
		"connectionTestQuery": "SELECT 1",
	}, c.DataSource[0])
	require.Equal(config.Properties{"driverClassName": "explicit"}, c.DataSource[1])
	require.Equal("org.postgresql.Driver", c.HighAvailabilityDataSource["zone-1"][0].String(config.KeyDriverClassName))

	require.False(p.Supports(context.Background(), &config.Config{}, "p"))
}
