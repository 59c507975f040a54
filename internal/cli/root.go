// Package cli implements the dynds command.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/env"
)

// globals is the state shared by every command.
type globals struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	configFile string
	logLevel   string
	zone       string
	dump       bool

	env    *env.Viper
	logger hclog.Logger
}

// NewRootCommand returns the dynds command.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdin: stdin, stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "dynds",
		Short: "Validate and activate dynamic data source configurations.",
		Long: `dynds reads dynamic data source configurations from a configuration
file and the environment, the same way an application embedding the
engine does.

Configurations are stored under ` + config.PropertyPrefix + `.<name>.
The value is an inline JSON or YAML document, a classpath: or a file:
reference.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
	}

	flags := rc.PersistentFlags()
	flags.StringVarP(&g.configFile, "config", "c", "", "Configuration file to read properties from.")
	flags.StringVar(&g.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error).")
	flags.StringVar(&g.zone, "zone", "", "High availability zone to select data sources for.")
	flags.BoolVar(&g.dump, "dump", false, "Dump every configuration after post processing.")

	rc.AddCommand(newValidateCommand(g))
	rc.AddCommand(newActivateCommand(g))
	rc.AddCommand(newModulesCommand(g))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (g *globals) setup() error {
	// hclog refuses to color anything but files.
	logColor := hclog.ColorOff
	if _, ok := g.stderr.(*os.File); ok {
		logColor = hclog.AutoColor
	}

	g.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "dynds",
		Level:  hclog.LevelFromString(g.logLevel),
		Output: g.stderr,
		Color:  logColor,
	})
	hclog.SetDefault(g.logger)

	// Only color terminals.
	color.NoColor = true
	if f, ok := g.stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		color.NoColor = false
		g.stdout = colorable.NewColorable(f)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if g.configFile != "" {
		v.SetConfigFile(g.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", g.configFile, err)
		}
	}

	g.env = env.New(v)
	return nil
}

// propertyNames turns command arguments into property names. Without
// arguments every configured property is returned.
func (g *globals) propertyNames(args []string) []string {
	if len(args) == 0 {
		return g.env.Keys(config.PropertyPrefix)
	}

	result := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, config.PropertyPrefix+".") {
			result[i] = arg
		} else {
			result[i] = config.PropertyName(arg)
		}
	}
	return result
}

func (g *globals) dumpConfig(propertyName string, c *config.Config) {
	if !g.dump {
		return
	}

	fmt.Fprintf(g.stdout, "# %s\n%s\n", propertyName, spew.Sdump(c))
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)
