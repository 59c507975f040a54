package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	sdk "github.com/hashicorp/dynamic-datasource-sdk"
	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/config/validation"
)

func newValidateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [name...]",
		Short: "Post process and validate configurations without opening any pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.validate(cmd.Context(), args)
		},
	}
}

func (g *globals) validate(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.zone != "" {
		ctx = config.WithZone(ctx, g.zone)
	}

	proc := sdk.NewProcessor(
		sdk.WithLogger(g.logger),
		sdk.WithEnvironment(g.env),
	)
	defer proc.Close()

	names := g.propertyNames(args)
	if len(names) == 0 {
		fmt.Fprintln(g.stdout, "no configurations found under "+config.PropertyPrefix)
		return nil
	}

	loader := config.NewLoader(g.env)
	table := tablewriter.NewWriter(g.stdout)
	table.SetHeader([]string{"Property", "Name", "Modules", "Data sources", "Status"})
	table.SetAutoWrapText(false)

	invalid := 0
	var details []string
	for _, prop := range names {
		c, err := loader.Load(prop)
		if err != nil {
			invalid++
			table.Append([]string{prop, "", "", "", failColor.Sprint("UNREADABLE")})
			details = append(details, err.Error())
			continue
		}

		err = proc.Prepare(ctx, c, prop)
		g.dumpConfig(prop, c)

		status := okColor.Sprint("OK")
		var verr *validation.Errors
		if errors.As(err, &verr) {
			invalid++
			status = failColor.Sprint("INVALID")
			details = append(details, verr.Error())
		} else if err != nil {
			invalid++
			status = failColor.Sprint("ERROR")
			details = append(details, err.Error())
		}

		table.Append([]string{
			prop,
			c.Name,
			strings.Join(config.Present(config.DefaultRegistry, c), ", "),
			fmt.Sprint(len(c.DataSourceProperties(config.ZoneFromContext(ctx)))),
			status,
		})
	}

	table.Render()
	for _, d := range details {
		fmt.Fprintln(g.stdout, d)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d configurations are invalid", invalid, len(names))
	}

	return nil
}
