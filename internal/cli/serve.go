package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/egv/autotask/internal/config"
	"github.com/egv/autotask/internal/httpapi"
	"github.com/egv/autotask/internal/log"
	"github.com/egv/autotask/internal/notify"
	"github.com/egv/autotask/internal/service"
)

const (
	reloadTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(o *rootOptions) *cobra.Command {
	var addr, staticDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP and reload it on change notices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if staticDir != "" {
				cfg.Server.StaticDir = staticDir
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.OutOrStdout(), o.serveReady)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "directory served at /")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, out io.Writer, ready func(string)) error {
	logger := log.GetLogger()

	hub := httpapi.NewHub()
	defer hub.Close()
	sink, closeSinks, err := eventSinks(cfg, hub)
	if err != nil {
		return err
	}
	defer closeSinks()

	svc, closer, err := openService(ctx, cfg, sink)
	if err != nil {
		return err
	}
	defer closer.Close()

	if url := strings.TrimSpace(cfg.NATS.URL); url != "" {
		unsubscribe, err := subscribeReloads(ctx, cfg, svc)
		if err != nil {
			return err
		}
		defer unsubscribe()
	}

	handler := httpapi.NewHandler(svc, httpapi.HandlerOptions{
		Hub:       hub,
		StaticDir: cfg.Server.StaticDir,
		Logger:    logger,
	})
	server := httpapi.NewServer(cfg.Server.Addr, handler)
	if err := server.Listen(); err != nil {
		return err
	}
	fmt.Fprintf(out, "serving %s catalog v%d on %s\n", svc.SourceName(), svc.Version(), server.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	if ready != nil {
		ready(server.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// subscribeReloads reloads svc whenever a notice for its source kind
// arrives. Notices without a source reload every subscriber.
func subscribeReloads(ctx context.Context, cfg config.Config, svc *service.QueryService) (func(), error) {
	logger := log.GetLogger()
	conn, err := notify.Connect(cfg.NATS.URL, "autotask-serve")
	if err != nil {
		return nil, err
	}
	sub, err := notify.Subscribe(conn, cfg.NATS.Subject, func(notice notify.Notice) {
		if notice.Source != "" && notice.Source != svc.SourceName() {
			logger.WithField("notice_source", notice.Source).Debug("ignoring notice for another source")
			return
		}
		reloadCtx, cancel := context.WithTimeout(ctx, reloadTimeout)
		defer cancel()
		if _, err := svc.Reload(reloadCtx); err != nil {
			logger.WithError(err).Warn("reload after notice failed")
		}
	}, func(err error) {
		logger.WithError(err).Warn("ignoring malformed notice")
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return func() {
		_ = sub.Unsubscribe()
		conn.Close()
	}, nil
}
