package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/egv/autotask/internal/config"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/notify"
	"github.com/egv/autotask/internal/storage"
)

func newPushCommand(o *rootOptions) *cobra.Command {
	var to, toPath string
	var toTarget config.SourceConfig
	cmd := &cobra.Command{
		Use:   "push --to <kind>",
		Short: "Copy the configured catalog into a store and announce it",
		Long:  `Loads the configured catalog, saves it to the target store, and publishes a change notice on NATS when nats.url is set. Target settings come from the same config file as the source.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			kind, err := config.ParseSourceKind(to)
			if err != nil {
				return err
			}
			target := cfg.Source
			target.Kind = kind
			if toPath != "" {
				target.Path = toPath
			}
			overrideTarget(cmd, &target, toTarget)
			if sameLocation(cfg.Source, target) {
				return fmt.Errorf("push target is the configured source")
			}

			ctx := cmd.Context()
			source, closeSource, err := storage.OpenSource(ctx, cfg.Source)
			if err != nil {
				return err
			}
			defer closeSource.Close()
			loaded, err := source.LoadCatalog(ctx)
			if err != nil {
				return err
			}

			store, closeStore, err := storage.OpenStore(ctx, target)
			if err != nil {
				return err
			}
			defer closeStore.Close()
			if err := store.SaveCatalog(ctx, loaded); err != nil {
				return fmt.Errorf("save catalog to %s: %w", kind, err)
			}

			var extra []contracts.EventSink
			if url := strings.TrimSpace(cfg.NATS.URL); url != "" {
				conn, err := notify.Connect(url, "autotask-push")
				if err != nil {
					return err
				}
				defer conn.Close()
				extra = append(extra, notify.NewPublisher(conn, cfg.NATS.Subject))
			}
			sink, cleanup, err := eventSinks(cfg, extra...)
			if err != nil {
				return err
			}
			defer cleanup()
			if sink != nil {
				err := sink.Emit(ctx, contracts.Event{
					Type:   contracts.EventTypeCatalogSaved,
					Source: string(kind),
					Metadata: map[string]string{
						"tasks":     strconv.Itoa(len(loaded.Tasks)),
						"relations": strconv.Itoa(len(loaded.Relations)),
					},
					Timestamp: time.Now().UTC(),
				})
				if err != nil {
					return fmt.Errorf("announce saved catalog: %w", err)
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pushed %d tasks and %d relations to %s\n",
				len(loaded.Tasks), len(loaded.Relations), kind)
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target store: file, redis, postgres, s3")
	cmd.Flags().StringVar(&toPath, "to-path", "", "target file for --to file")
	cmd.Flags().StringVar(&toTarget.Redis.Addr, "to-redis-addr", "", "target redis address")
	cmd.Flags().IntVar(&toTarget.Redis.DB, "to-redis-db", 0, "target redis database")
	cmd.Flags().StringVar(&toTarget.Redis.Prefix, "to-redis-prefix", "", "target redis key prefix")
	cmd.Flags().StringVar(&toTarget.Postgres.DSN, "to-postgres-dsn", "", "target postgres DSN")
	cmd.Flags().StringVar(&toTarget.S3.Endpoint, "to-s3-endpoint", "", "target s3 endpoint")
	cmd.Flags().StringVar(&toTarget.S3.Bucket, "to-s3-bucket", "", "target s3 bucket")
	cmd.Flags().StringVar(&toTarget.S3.Key, "to-s3-key", "", "target s3 object key")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// overrideTarget applies the --to-* flags the user set on top of the source
// settings.
func overrideTarget(cmd *cobra.Command, target *config.SourceConfig, flags config.SourceConfig) {
	changed := cmd.Flags().Changed
	if changed("to-redis-addr") {
		target.Redis.Addr = flags.Redis.Addr
	}
	if changed("to-redis-db") {
		target.Redis.DB = flags.Redis.DB
	}
	if changed("to-redis-prefix") {
		target.Redis.Prefix = flags.Redis.Prefix
	}
	if changed("to-postgres-dsn") {
		target.Postgres.DSN = flags.Postgres.DSN
	}
	if changed("to-s3-endpoint") {
		target.S3.Endpoint = flags.S3.Endpoint
	}
	if changed("to-s3-bucket") {
		target.S3.Bucket = flags.S3.Bucket
	}
	if changed("to-s3-key") {
		target.S3.Key = flags.S3.Key
	}
}

// sameLocation reports whether two source settings address the same stored
// catalog.
func sameLocation(a, b config.SourceConfig) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case config.SourceFile:
		return filepath.Clean(a.Path) == filepath.Clean(b.Path)
	case config.SourceRedis:
		return strings.TrimSpace(a.Redis.Addr) == strings.TrimSpace(b.Redis.Addr) &&
			a.Redis.DB == b.Redis.DB &&
			a.Redis.Prefix == b.Redis.Prefix
	case config.SourcePostgres:
		return strings.TrimSpace(a.Postgres.DSN) == strings.TrimSpace(b.Postgres.DSN)
	case config.SourceS3:
		return strings.TrimSpace(a.S3.Endpoint) == strings.TrimSpace(b.S3.Endpoint) &&
			a.S3.Bucket == b.S3.Bucket &&
			a.S3.Key == b.S3.Key
	default:
		return true
	}
}
