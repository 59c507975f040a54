package postprocess

import (
	"context"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/env"
)

// TransactionTimeoutProperty is the host property holding the default
// transaction timeout.
const TransactionTimeoutProperty = "dynamic.datasource.transaction.timeout"

// NewTransactionProcessor names the transaction module and applies the
// host default timeout when the configuration does not set one. e may be
// nil.
func NewTransactionProcessor(l config.ModuleLookup, e env.Environment) *ConfigurationProcessor[*config.Transaction] {
	return &ConfigurationProcessor[*config.Transaction]{
		Module: config.ModuleTransaction,
		Lookup: l,
		Process: func(_ context.Context, _ *config.Config, _, _ string, tx *config.Transaction) {
			if tx.Timeout == 0 && e != nil {
				tx.Timeout = e.Duration(TransactionTimeoutProperty, 0)
			}
		},
	}
}

// NewShardingProcessor names the sharding module.
func NewShardingProcessor(l config.ModuleLookup) *ConfigurationProcessor[*config.Sharding] {
	return &ConfigurationProcessor[*config.Sharding]{Module: config.ModuleSharding, Lookup: l}
}

// NewMapperProcessor names the mapper module and drops blank packages.
func NewMapperProcessor(l config.ModuleLookup) *ConfigurationProcessor[*config.Mapper] {
	return &ConfigurationProcessor[*config.Mapper]{
		Module: config.ModuleMapper,
		Lookup: l,
		Process: func(_ context.Context, _ *config.Config, _, _ string, m *config.Mapper) {
			packages := m.Packages[:0]
			for _, p := range m.Packages {
				if p = strings.TrimSpace(p); p != "" {
					packages = append(packages, p)
				}
			}
			m.Packages = packages
		},
	}
}

// PropertyKeyProcessor rewrites relaxed data source property keys such as
// "driver-class-name", "driver_class_name" or "driverclassname" to their
// canonical form. A canonical key that is already set is never
// overwritten.
type PropertyKeyProcessor struct {
	// Known are extra canonical keys matched case insensitively.
	Known []string
}

// CanonicalKeys are the data source keys matched case insensitively.
var CanonicalKeys = []string{
	config.KeyName,
	config.KeyType,
	config.KeyDriverClassName,
	config.KeyURL,
	config.KeyUsername,
	config.KeyPassword,
	config.KeyPrimary,
	"jdbcUrl",
	"maximumPoolSize",
	"minimumIdle",
	"maxLifetime",
	"idleTimeout",
	"connectionTimeout",
	"connectionTestQuery",
}

func (PropertyKeyProcessor) Supports(_ context.Context, c *config.Config, _ string) bool {
	return c.HasDataSource() || c.HasHighAvailabilityDataSource()
}

func (p PropertyKeyProcessor) PostProcess(_ context.Context, c *config.Config, _ string) {
	known := map[string]string{}
	for _, k := range append(append([]string(nil), CanonicalKeys...), p.Known...) {
		known[strings.ToLower(k)] = k
	}

	for _, props := range c.DataSource {
		canonicalize(props, known)
	}

	for _, list := range c.HighAvailabilityDataSource {
		for _, props := range list {
			canonicalize(props, known)
		}
	}
}

func canonicalize(props config.Properties, known map[string]string) {
	for k, v := range props {
		target := k
		if strings.ContainsAny(k, "-_") {
			target = strcase.ToLowerCamel(k)
		}
		if c, ok := known[strings.ToLower(target)]; ok {
			target = c
		}

		if target == k {
			continue
		}

		delete(props, k)
		if _, ok := props[target]; !ok {
			props[target] = v
		}
	}
}
