package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/egv/autotask/internal/config"
	"github.com/egv/autotask/internal/log"
	"github.com/egv/autotask/internal/version"
)

type rootOptions struct {
	configPath string
	source     string
	catalog    string
	logLevel   string

	getenv func(string) string
	// serveReady is called with the bound address once serve accepts
	// connections.
	serveReady func(addr string)
}

// NewRootCommand builds the autotask command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{getenv: os.Getenv})
}

func newRootCommand(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "autotask",
		Short:         "Query task catalogs and their dependency graph",
		Long:          `autotask loads a task catalog with depends_on, parallel, and condition relations and answers graph queries over it from the command line, an HTTP API, or a terminal browser.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configPath, "config", config.DefaultPath, "config file")
	flags.StringVar(&o.source, "source", "", "catalog source: "+joinKinds())
	flags.StringVar(&o.catalog, "catalog", "", "catalog file (implies --source file)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newVersionCommand(),
		newListCommand(o),
		newRelatedCommand(o),
		newRelationsCommand(o),
		newInspectCommand(o),
		newCheckCommand(o),
		newServeCommand(o),
		newTUICommand(o),
		newPushCommand(o),
		newMigrateCommand(o),
		newEventsCommand(o),
	)
	return root
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "autotask "+version.String())
			return err
		},
	}
}

// loadConfig layers flags over the config file and environment, then
// applies the log level.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	required := false
	if flag := cmd.Flag("config"); flag != nil {
		required = flag.Changed
	}
	cfg, err := config.Load(config.LoadOptions{
		Path:     o.configPath,
		Required: required,
		DotEnv:   []string{".env"},
		Getenv:   o.getenv,
	})
	if err != nil {
		return config.Config{}, err
	}

	if strings.TrimSpace(o.source) != "" {
		kind, err := config.ParseSourceKind(o.source)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Source.Kind = kind
	}
	if strings.TrimSpace(o.catalog) != "" {
		cfg.Source.Path = o.catalog
		if strings.TrimSpace(o.source) == "" {
			cfg.Source.Kind = config.SourceFile
		}
	}
	if strings.TrimSpace(o.logLevel) != "" {
		cfg.Log.Level = o.logLevel
	}
	log.SetLevel(cfg.Log.Level)
	log.SetOutput(cmd.ErrOrStderr())

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func joinKinds() string {
	kinds := config.SourceKinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return strings.Join(names, ", ")
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
