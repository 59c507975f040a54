package datasource

import (
	"context"
	"strings"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/config/validation"
)

// PropertiesPostProcessor makes each data source entry inherit the keys
// it does not set from the entry before it. Keys an entry sets explicitly
// are never overwritten, and "name" and "primary" are never inherited.
//
// Only the effective list is processed: the list of the zone set on the
// context, or the plain list when no zone is set.
type PropertiesPostProcessor struct{}

func (PropertiesPostProcessor) Supports(ctx context.Context, c *config.Config, _ string) bool {
	return len(c.DataSourceProperties(config.ZoneFromContext(ctx))) > 1
}

func (PropertiesPostProcessor) PostProcess(ctx context.Context, c *config.Config, _ string) {
	Inherit(c.DataSourceProperties(config.ZoneFromContext(ctx)))
}

// Inherit copies keys forward through list in place.
func Inherit(list []config.Properties) {
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if cur == nil {
			cur = config.Properties{}
			list[i] = cur
		}

		for k, v := range prev {
			if k == config.KeyName || k == config.KeyPrimary {
				continue
			}

			if _, ok := cur[k]; !ok {
				cur[k] = v
			}
		}
	}
}

// ExclusivityValidator requires exactly one of the plain and high
// availability data source modules.
type ExclusivityValidator struct{}

func (ExclusivityValidator) Supports(context.Context, *config.Config, string) bool { return true }

func (ExclusivityValidator) Validate(_ context.Context, c *config.Config, _ string, errs *validation.Errors) {
	plain, ha := c.HasDataSource(), c.HasHighAvailabilityDataSource()
	switch {
	case !plain && !ha:
		errs.Addf("'%s' or '%s' module must be present",
			config.ModuleDataSource, config.ModuleHighAvailabilityDataSource)
	case plain && ha:
		errs.Addf("'%s' and '%s' module must not be present at the same time",
			config.ModuleDataSource, config.ModuleHighAvailabilityDataSource)
	}
}

// PropertiesValidator requires a url on every entry of the effective list
// and at most one entry marked primary.
type PropertiesValidator struct{}

func (PropertiesValidator) Supports(ctx context.Context, c *config.Config, _ string) bool {
	return len(c.DataSourceProperties(config.ZoneFromContext(ctx))) > 0
}

func (PropertiesValidator) Validate(ctx context.Context, c *config.Config, _ string, errs *validation.Errors) {
	primaries := 0
	for i, props := range c.DataSourceProperties(config.ZoneFromContext(ctx)) {
		if strings.TrimSpace(props.URL()) == "" {
			errs.Addf("data source %d must contain 'url' attribute", i)
		}

		if props.Primary() {
			primaries++
		}
	}

	if primaries > 1 {
		errs.Add("at most one data source may be marked 'primary'")
	}
}
