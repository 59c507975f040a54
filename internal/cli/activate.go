package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	sdk "github.com/hashicorp/dynamic-datasource-sdk"
	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/datasource"
)

type activateFlags struct {
	ping    bool
	timeout time.Duration
}

func newActivateCommand(g *globals) *cobra.Command {
	var f activateFlags

	cmd := &cobra.Command{
		Use:   "activate [name...]",
		Short: "Activate configurations and report the selected delegates.",
		Long: `Activate builds the pools of every configuration, selects the delegate
and closes everything again. With --ping a connection is taken from each
delegate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.activate(cmd.Context(), args, f)
		},
	}

	cmd.Flags().BoolVar(&f.ping, "ping", false, "Ping every delegate after activation.")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Timeout of each ping.")
	return cmd
}

func (g *globals) activate(ctx context.Context, args []string, f activateFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.zone != "" {
		ctx = config.WithZone(ctx, g.zone)
	}

	proc := sdk.NewProcessor(
		sdk.WithLogger(g.logger),
		sdk.WithEnvironment(g.env),
		sdk.WithDataSourceOptions(datasource.WithCloseDelay(0)),
	)
	defer proc.Close()

	names := g.propertyNames(args)
	if len(names) == 0 {
		fmt.Fprintln(g.stdout, "no configurations found under "+config.PropertyPrefix)
		return nil
	}

	table := tablewriter.NewWriter(g.stdout)
	table.SetHeader([]string{"Property", "Delegate", "Pools", "Unit", "Status"})
	table.SetAutoWrapText(false)

	var result error
	for _, prop := range names {
		ds, err := proc.Load(ctx, prop)
		if err != nil {
			result = multierror.Append(result, err)
			table.Append([]string{prop, "", "", "", failColor.Sprint("FAILED")})
			continue
		}

		status := okColor.Sprint("ACTIVE")
		if f.ping {
			if err := ping(ctx, ds, f.timeout); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", prop, err))
				status = failColor.Sprint("UNREACHABLE")
			}
		}

		u := ds.Unit()
		table.Append([]string{
			prop,
			selectedName(u),
			fmt.Sprint(len(u.DataSources())),
			u.ID(),
			status,
		})
	}

	table.Render()
	if result != nil {
		fmt.Fprintln(g.stdout, result)
	}

	return result
}

func ping(ctx context.Context, ds datasource.DataSource, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := ds.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.PingContext(ctx)
}

// selectedName returns the name of the delegate of u.
func selectedName(u datasource.Unit) string {
	selected, err := datasource.Select(u.DataSources())
	if err != nil {
		return ""
	}

	return selected.Name
}
