package cli

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/docs"
)

func newModulesCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "modules [module...]",
		Short: "Document the configuration document and its modules.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.modules(args)
		},
	}
}

func (g *globals) modules(args []string) error {
	if len(args) == 0 {
		d, err := docs.Root()
		if err != nil {
			return err
		}

		g.printDocs("configuration", d)
		fmt.Fprintf(g.stdout, "\nModules: %s\n", strings.Join(config.DefaultRegistry.Modules(), ", "))
		return nil
	}

	for _, name := range args {
		d, err := docs.Module(name)
		if err != nil {
			return err
		}

		g.printDocs(name, d)
	}

	return nil
}

func (g *globals) printDocs(title string, d *docs.Documentation) {
	details := d.Details()
	fmt.Fprintf(g.stdout, "%s\n", okColor.Sprint(title))
	if details.Description != "" {
		fmt.Fprintf(g.stdout, "%s\n", details.Description)
	}

	table := tablewriter.NewWriter(g.stdout)
	table.SetHeader([]string{"Field", "Type", "Optional", "Description"})
	table.SetAutoWrapText(false)
	for _, f := range d.Fields() {
		table.Append(fieldRow("", f))
		for _, sub := range f.SubFields {
			table.Append(fieldRow(f.Field+".", sub))
		}
	}
	table.Render()
}

func fieldRow(prefix string, f *docs.FieldDocs) []string {
	desc := f.Synopsis
	if f.Default != "" {
		desc += fmt.Sprintf(" (default %s)", f.Default)
	}
	if f.Property != "" {
		desc += fmt.Sprintf(" (property %s)", f.Property)
	}

	return []string{prefix + f.Field, f.Type, fmt.Sprint(f.Optional), strings.TrimSpace(desc)}
}
