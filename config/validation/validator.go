// Package validation checks configurations before they are activated.
//
// Validators never stop at the first problem. Every applicable validator of
// a Chain runs and records its messages into one shared Errors.
package validation

import (
	"context"
	"strings"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
)

// Validator checks one aspect of a configuration.
type Validator interface {
	// Supports reports whether the validator applies to c.
	Supports(ctx context.Context, c *config.Config, propertyName string) bool

	// Validate records problems with c into errs.
	Validate(ctx context.Context, c *config.Config, propertyName string, errs *Errors)
}

// Func is a Validator that always applies.
type Func func(ctx context.Context, c *config.Config, propertyName string, errs *Errors)

func (f Func) Supports(context.Context, *config.Config, string) bool { return true }

func (f Func) Validate(ctx context.Context, c *config.Config, propertyName string, errs *Errors) {
	f(ctx, c, propertyName, errs)
}

// Chain runs validators in registration order.
type Chain []Validator

// Validate runs every supporting validator and returns the collected
// errors.
func (ch Chain) Validate(ctx context.Context, c *config.Config, propertyName string) *Errors {
	errs := NewErrors(propertyName)
	for _, v := range ch {
		if v.Supports(ctx, c, propertyName) {
			v.Validate(ctx, c, propertyName, errs)
		}
	}

	return errs
}

// NameValidator requires a name.
type NameValidator struct{}

func (NameValidator) Supports(context.Context, *config.Config, string) bool { return true }

func (NameValidator) Validate(_ context.Context, c *config.Config, _ string, errs *Errors) {
	if strings.TrimSpace(c.Name) == "" {
		errs.Add("must contain 'name' attribute")
	}
}

// ModulesValidator requires at least one module to be present.
type ModulesValidator struct {
	Lookup config.ModuleLookup
}

func (ModulesValidator) Supports(context.Context, *config.Config, string) bool { return true }

func (v ModulesValidator) Validate(_ context.Context, c *config.Config, _ string, errs *Errors) {
	lookup := v.Lookup
	if lookup == nil {
		lookup = config.DefaultRegistry
	}

	if len(config.Present(lookup, c)) == 0 {
		errs.Addf("must contain one of modules [%s]", strings.Join(lookup.Modules(), ", "))
	}
}
