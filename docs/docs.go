package docs

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// Details documents highlevel information about a configuration module.
type Details struct {
	// Module is the name of the module, for example "transaction".
	Module string

	// Description is the highlevel description of the module.
	Description string

	// Example is typically a JSON or YAML snippet of the module.
	Example string
}

// FieldDocs documents a specific attribute of a configuration document.
type FieldDocs struct {
	// Field is the document key of the attribute
	Field string

	// Type is the Go type of the attribute (int, string, etc)
	Type string

	// Synopsis is a short, one line description of the attribute
	Synopsis string

	// Summary is a longer, more indepth description of the attribute.
	Summary string

	// Optional indicates of the attribute is optional or not.
	Optional bool

	// Default indicates the value of the attribute if the user does not set it.
	Default string

	// Property indicates the host property the default is read from.
	Property string

	// Category indicates that this is not a field itself but an object
	// that has fields underneith it.
	Category bool

	// SubFields is defined when this field is a category. It is the fields
	// in that category.
	SubFields []*FieldDocs
}

// Documentation documents a configuration module.
type Documentation struct {
	module      string
	description string
	example     string
	fields      map[string]*FieldDocs
}

// Option is implemented by various functions to automatically populate
// the Documentation.
type Option func(*Documentation) error

// New creates a new Documentation value.
func New(opts ...Option) (*Documentation, error) {
	var d Documentation
	d.fields = make(map[string]*FieldDocs)

	for _, opt := range opts {
		err := opt(&d)
		if err != nil {
			return nil, err
		}
	}

	return &d, nil
}

// FromConfig populates the Documentation value by reading the struct
// members on v, which must be a pointer to a struct. Field names come from
// the mapstructure tag, or the kebab-cased Go name when there is none.
func FromConfig(v interface{}) Option {
	return func(d *Documentation) error {
		return fromConfig(v, d.fields)
	}
}

// WithModule sets the module name.
func WithModule(name string) Option {
	return func(d *Documentation) error {
		d.module = name
		return nil
	}
}

func fromConfig(v interface{}, target map[string]*FieldDocs) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("invalid config type, must be pointer to struct")
	}

	return fromStruct(rv.Elem().Type(), target)
}

func fromStruct(t reflect.Type, target map[string]*FieldDocs) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue
		}

		if f.Tag.Get("docs") == "hidden" {
			continue
		}

		name, opts := parseTag(f)
		if name == "-" {
			continue
		}

		// Squashed structs contribute their fields to the parent.
		if opts["squash"] {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if err := fromStruct(ft, target); err != nil {
				return err
			}
			continue
		}

		field := &FieldDocs{
			Field:    name,
			Type:     cleanupType(f.Type.String()),
			Optional: f.Type.Kind() == reflect.Ptr || opts["omitempty"],
		}

		ft := f.Type
		for ft.Kind() == reflect.Ptr || ft.Kind() == reflect.Slice || ft.Kind() == reflect.Map {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			sub := make(map[string]*FieldDocs)
			if err := fromStruct(ft, sub); err != nil {
				return err
			}

			field.SubFields = sortedFields(sub)
			field.Category = true
		}

		target[name] = field
	}

	return nil
}

func parseTag(f reflect.StructField) (string, map[string]bool) {
	opts := map[string]bool{}
	tag, ok := f.Tag.Lookup("mapstructure")
	if !ok {
		return strcase.ToKebab(f.Name), opts
	}

	parts := strings.Split(tag, ",")
	for _, p := range parts[1:] {
		opts[p] = true
	}

	if parts[0] == "" {
		return strcase.ToKebab(f.Name), opts
	}

	return parts[0], opts
}

// FieldOption adjusts the documentation of a single field.
type FieldOption func(*FieldDocs)

// Summary sets the longer description of a field. The parts are trimmed
// and joined with single spaces; an empty part starts a new line.
func Summary(parts ...string) FieldOption {
	var sb strings.Builder
	for i, part := range parts {
		if part == "" {
			sb.WriteByte('\n')
			continue
		}

		if i > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(part))
	}

	summary := sb.String()
	return func(f *FieldDocs) { f.Summary = summary }
}

// Default sets the value a field takes when it is not set.
func Default(v string) FieldOption {
	return func(f *FieldDocs) { f.Default = v }
}

// Property names the host property a field's default is read from.
func Property(key string) FieldOption {
	return func(f *FieldDocs) { f.Property = key }
}

// Example sets the example document of the module.
func (d *Documentation) Example(x string) { d.example = x }

// Description sets the description of the module.
func (d *Documentation) Description(x string) { d.description = x }

// SetField documents the named field, creating it when the configuration
// type did not declare it. Type information found by FromConfig is kept.
func (d *Documentation) SetField(name, synopsis string, opts ...FieldOption) {
	f := d.fields[name]
	if f == nil {
		f = &FieldDocs{Field: name}
		d.fields[name] = f
	}

	f.Synopsis = synopsis
	for _, opt := range opts {
		opt(f)
	}
}

// OverrideField replaces the documentation of f.Field.
func (d *Documentation) OverrideField(f *FieldDocs) {
	d.fields[f.Field] = f
}

// Details returns the module level documentation.
func (d *Documentation) Details() *Details {
	return &Details{
		Module:      d.module,
		Example:     d.example,
		Description: d.description,
	}
}

// Fields returns the documented fields sorted by name.
func (d *Documentation) Fields() []*FieldDocs {
	return sortedFields(d.fields)
}

// Field returns the documentation of the named field, or nil.
func (d *Documentation) Field(name string) *FieldDocs {
	return d.fields[name]
}

func sortedFields(m map[string]*FieldDocs) []*FieldDocs {
	fields := make([]*FieldDocs, 0, len(m))
	for _, f := range m {
		fields = append(fields, f)
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}
