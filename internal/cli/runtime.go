package cli

import (
	"context"
	"io"
	"strings"

	"github.com/egv/autotask/internal/config"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/log"
	"github.com/egv/autotask/internal/logging"
	"github.com/egv/autotask/internal/service"
	"github.com/egv/autotask/internal/storage"
)

// openService opens the configured source and loads the first snapshot.
func openService(ctx context.Context, cfg config.Config, sink contracts.EventSink) (*service.QueryService, io.Closer, error) {
	source, closer, err := storage.OpenSource(ctx, cfg.Source)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewQueryService(source, service.Options{
		CacheSize:   cfg.Cache.Size,
		SourceName:  string(cfg.Source.Kind),
		Logger:      log.GetLogger(),
		Sink:        sink,
		EmitQueries: cfg.Events.Queries,
	})
	if _, err := svc.Reload(ctx); err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return svc, closer, nil
}

// eventSinks opens the JSONL event log when one is configured and fans
// events out to it and to extra. The returned sink is nil when there is
// nothing to send to.
func eventSinks(cfg config.Config, extra ...contracts.EventSink) (contracts.EventSink, func(), error) {
	sinks := contracts.MultiSink{}
	cleanup := func() {}
	if path := strings.TrimSpace(cfg.Events.Path); path != "" {
		jsonl, err := logging.NewJSONLSink(path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, jsonl)
		cleanup = func() { _ = jsonl.Close() }
	}
	sinks = append(sinks, extra...)
	if len(sinks) == 0 {
		return nil, cleanup, nil
	}
	return sinks, cleanup, nil
}
