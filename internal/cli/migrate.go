package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/egv/autotask/internal/storage/pgstore"
)

func newMigrateCommand(o *rootOptions) *cobra.Command {
	var dsn string
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.Source.Postgres.DSN
			}
			if strings.TrimSpace(dsn) == "" {
				return fmt.Errorf("postgres dsn is required (--dsn or source.postgres.dsn)")
			}

			store, err := pgstore.Open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			if down {
				err = store.MigrateDown()
			} else {
				err = store.Migrate()
			}
			if err != nil {
				return err
			}
			version, dirty, err := store.SchemaVersion()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return err
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string")
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}
