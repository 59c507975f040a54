// Package env resolves host properties for the dynamic data source engine.
package env

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment resolves host properties.
type Environment interface {
	// Get returns the raw value of key or nil.
	Get(key string) interface{}

	// String returns the value of key as a string or "".
	String(key string) string

	// Duration returns the value of key as a duration, or def when the
	// key is unset or malformed. Plain numbers are milliseconds.
	Duration(key string, def time.Duration) time.Duration

	// Keys returns the distinct keys directly below prefix, sorted. For
	// prefix "a.b" and properties "a.b.c" and "a.b.d.e" it returns
	// "a.b.c" and "a.b.d".
	Keys(prefix string) []string
}

// Viper is an Environment backed by a viper instance.
type Viper struct {
	v *viper.Viper
}

// New returns an Environment reading from v. A nil v uses a new viper
// instance that reads the process environment.
func New(v *viper.Viper) *Viper {
	if v == nil {
		v = viper.New()
		v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
		v.AutomaticEnv()
	}

	return &Viper{v: v}
}

// FromMap returns an Environment holding the given properties. Keys are
// dotted paths.
func FromMap(m map[string]interface{}) *Viper {
	v := viper.New()
	for k, val := range m {
		v.Set(k, val)
	}

	return &Viper{v: v}
}

// Viper returns the underlying viper instance.
func (e *Viper) Viper() *viper.Viper {
	return e.v
}

// Set sets an override for key.
func (e *Viper) Set(key string, value interface{}) {
	e.v.Set(key, value)
}

func (e *Viper) Get(key string) interface{} {
	return e.v.Get(key)
}

func (e *Viper) String(key string) string {
	return e.v.GetString(key)
}

func (e *Viper) Duration(key string, def time.Duration) time.Duration {
	if !e.v.IsSet(key) {
		return def
	}

	raw := strings.TrimSpace(e.v.GetString(key))
	if raw == "" {
		return def
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}

	return d
}

func (e *Viper) Keys(prefix string) []string {
	prefix = strings.ToLower(strings.TrimSuffix(prefix, "."))
	seen := map[string]struct{}{}
	for _, k := range e.v.AllKeys() {
		if !strings.HasPrefix(k, prefix+".") {
			continue
		}

		rest := strings.TrimPrefix(k, prefix+".")
		if idx := strings.Index(rest, "."); idx >= 0 {
			rest = rest[:idx]
		}
		if rest == "" {
			continue
		}

		seen[prefix+"."+rest] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for k := range seen {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

var _ Environment = (*Viper)(nil)
