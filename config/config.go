package config

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known data source property keys.
const (
	KeyName            = "name"
	KeyType            = "type"
	KeyDriverClassName = "driverClassName"
	KeyURL             = "url"
	KeyUsername        = "username"
	KeyPassword        = "password"
	KeyPrimary         = "primary"
)

// DefaultZone is the high availability zone used when no zone is set on
// the context.
const DefaultZone = "default"

// Config is one dynamic data source configuration.
//
// A Config is decoded once, mutated in place by post processing, read by
// activation and then stripped of its data source definitions.
type Config struct {
	Name    string `mapstructure:"name"`
	Dynamic bool   `mapstructure:"dynamic"`
	Primary bool   `mapstructure:"primary"`

	DataSource                 []Properties            `mapstructure:"datasource"`
	HighAvailabilityDataSource map[string][]Properties `mapstructure:"ha-datasource"`

	Transaction *Transaction `mapstructure:"transaction"`
	Sharding    *Sharding    `mapstructure:"sharding"`
	Mapper      *Mapper      `mapstructure:"mapper"`
}

// HasDataSource reports whether plain data sources are defined.
func (c *Config) HasDataSource() bool {
	return len(c.DataSource) > 0
}

// HasHighAvailabilityDataSource reports whether any zone defines a data
// source.
func (c *Config) HasHighAvailabilityDataSource() bool {
	for _, list := range c.HighAvailabilityDataSource {
		if len(list) > 0 {
			return true
		}
	}

	return false
}

// Zones returns the high availability zone names in sorted order.
func (c *Config) Zones() []string {
	result := make([]string, 0, len(c.HighAvailabilityDataSource))
	for z := range c.HighAvailabilityDataSource {
		result = append(result, z)
	}
	sort.Strings(result)
	return result
}

// DataSourceProperties returns the effective data source list for zone.
//
// A zone that has a high availability list selects that list. Otherwise
// the plain list is used, falling back to the "default" zone. The returned
// slice aliases the configuration so callers may mutate entries.
func (c *Config) DataSourceProperties(zone string) []Properties {
	if zone != "" {
		if list, ok := c.HighAvailabilityDataSource[zone]; ok {
			return list
		}
	}

	if len(c.DataSource) > 0 {
		return c.DataSource
	}

	return c.HighAvailabilityDataSource[DefaultZone]
}

// StripDataSources clears everything on the configuration that could be
// used to build a pool again. It is called once a configuration has been
// activated.
func (c *Config) StripDataSources() {
	c.DataSource = []Properties{}
	c.HighAvailabilityDataSource = map[string][]Properties{}
	c.Sharding = nil
}

// ModuleConfig is embedded in every module sub configuration.
type ModuleConfig struct {
	Name string `mapstructure:"name"`
}

// ModuleName returns the name of the module configuration.
func (m *ModuleConfig) ModuleName() string { return m.Name }

// SetModuleName sets the name of the module configuration.
func (m *ModuleConfig) SetModuleName(n string) { m.Name = n }

// Named is implemented by every module sub configuration.
type Named interface {
	ModuleName() string
	SetModuleName(string)
}

// Transaction configures the transaction manager of a unit.
type Transaction struct {
	ModuleConfig `mapstructure:",squash"`

	Customizers string        `mapstructure:"customizers"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Isolation   string        `mapstructure:"isolation"`
	ReadOnly    bool          `mapstructure:"read-only"`
}

// Sharding configures sharding over the data sources of a unit.
type Sharding struct {
	ModuleConfig `mapstructure:",squash"`

	Tables []string          `mapstructure:"tables"`
	Props  map[string]string `mapstructure:"props"`
}

// Mapper configures mapper scanning for a unit.
type Mapper struct {
	ModuleConfig `mapstructure:",squash"`

	Packages  []string `mapstructure:"packages"`
	Locations []string `mapstructure:"locations"`
}

// Properties is a single data source definition.
type Properties map[string]string

// Get returns the value of key and whether it is set.
func (p Properties) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns the value of key or the empty string.
func (p Properties) String(key string) string {
	return p[key]
}

// Bool returns the value of key parsed as a boolean. Unset or malformed
// values are false.
func (p Properties) Bool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(p[key]))
	return err == nil && v
}

// Int returns the value of key parsed as an int, or def.
func (p Properties) Int(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(p[key]))
	if err != nil {
		return def
	}
	return v
}

// Duration returns the value of key as a duration, or def. Plain numbers
// are milliseconds.
func (p Properties) Duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(p[key])
	if raw == "" {
		return def
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}

	return def
}

// Name returns the name property.
func (p Properties) Name() string { return p[KeyName] }

// URL returns the url property.
func (p Properties) URL() string { return p[KeyURL] }

// Primary reports whether the entry is marked primary.
func (p Properties) Primary() bool { return p.Bool(KeyPrimary) }

// Clone returns a copy of p.
func (p Properties) Clone() Properties {
	result := make(Properties, len(p))
	for k, v := range p {
		result[k] = v
	}
	return result
}
