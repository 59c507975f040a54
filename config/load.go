package config

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp/dynamic-datasource-sdk/env"
)

// PropertyPrefix is the namespace of dynamic data source properties. Each
// configuration lives at PropertyPrefix + "." + name.
const PropertyPrefix = "dynamic.datasource.configs"

const (
	classpathScheme = "classpath:"
	fileScheme      = "file:"
)

// ParseError is returned when a configuration document cannot be read or
// decoded.
type ParseError struct {
	PropertyName string
	Err          error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid dynamic data source configuration %q: %s", e.PropertyName, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PropertyName returns the property key for the configuration name.
func PropertyName(name string) string {
	return PropertyPrefix + "." + name
}

// NameFromPropertyName returns the trailing segment of a property key.
func NameFromPropertyName(propertyName string) string {
	if idx := strings.LastIndex(propertyName, "."); idx >= 0 {
		return propertyName[idx+1:]
	}

	return propertyName
}

// BeanName returns the name the configuration is registered under once
// processed.
func BeanName(c *Config, propertyName string) string {
	name := c.Name
	if name == "" {
		name = NameFromPropertyName(propertyName)
	}

	return "dynamicDataSourceConfig." + name + "@" + propertyName
}

// Decode decodes a configuration document. raw is either a JSON or YAML
// document, as a string or bytes, or an already parsed map.
func Decode(propertyName string, raw interface{}) (*Config, error) {
	var doc interface{}
	switch v := raw.(type) {
	case nil:
		return nil, &ParseError{PropertyName: propertyName, Err: fmt.Errorf("no configuration")}
	case string:
		if err := unmarshal([]byte(v), &doc); err != nil {
			return nil, &ParseError{PropertyName: propertyName, Err: err}
		}
	case []byte:
		if err := unmarshal(v, &doc); err != nil {
			return nil, &ParseError{PropertyName: propertyName, Err: err}
		}
	default:
		doc = v
	}

	var c Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &c,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(doc); err != nil {
		return nil, &ParseError{PropertyName: propertyName, Err: err}
	}

	return &c, nil
}

func unmarshal(data []byte, out *interface{}) error {
	if strings.TrimSpace(string(data)) == "" {
		return fmt.Errorf("empty document")
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return err
	}

	if _, ok := (*out).(map[string]interface{}); !ok {
		return fmt.Errorf("document is not an object")
	}

	return nil
}

// Loader reads configurations from an Environment.
type Loader struct {
	env       env.Environment
	resources fs.FS
}

// NewLoader returns a loader reading properties from e.
func NewLoader(e env.Environment, opts ...LoaderOption) *Loader {
	l := &Loader{env: e}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load reads and decodes the configuration stored at propertyName. The
// value may be an inline document, a nested map, a "classpath:" path
// inside the loader's resources or a "file:" path.
func (l *Loader) Load(propertyName string) (*Config, error) {
	raw := l.env.Get(propertyName)
	if raw == nil {
		return nil, &ParseError{
			PropertyName: propertyName,
			Err:          fmt.Errorf("property is not set"),
		}
	}

	if s, ok := raw.(string); ok {
		data, err := l.read(strings.TrimSpace(s))
		if err != nil {
			return nil, &ParseError{PropertyName: propertyName, Err: err}
		}

		return Decode(propertyName, data)
	}

	return Decode(propertyName, raw)
}

// LoadAll reads every configuration below PropertyPrefix. The result is
// empty, never nil, when none are set.
func (l *Loader) LoadAll() (map[string]*Config, error) {
	result := map[string]*Config{}
	for _, key := range l.PropertyNames() {
		c, err := l.Load(key)
		if err != nil {
			return nil, err
		}

		result[key] = c
	}

	return result, nil
}

// PropertyNames returns the property keys of every configuration.
func (l *Loader) PropertyNames() []string {
	return l.env.Keys(PropertyPrefix)
}

func (l *Loader) read(value string) ([]byte, error) {
	switch {
	case strings.HasPrefix(value, classpathScheme):
		if l.resources == nil {
			return nil, fmt.Errorf("no resources to resolve %q", value)
		}

		path := strings.TrimPrefix(strings.TrimPrefix(value, classpathScheme), "/")
		return fs.ReadFile(l.resources, path)

	case strings.HasPrefix(value, fileScheme):
		return os.ReadFile(strings.TrimPrefix(value, fileScheme))

	default:
		return []byte(value), nil
	}
}

// LoaderOption is used to configure NewLoader.
type LoaderOption func(*Loader)

// WithResources sets the file system "classpath:" references resolve in.
func WithResources(f fs.FS) LoaderOption {
	return func(l *Loader) { l.resources = f }
}
