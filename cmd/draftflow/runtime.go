package main

import (
	"context"
	"errors"

	"github.com/chambersiq/draftflow/internal/config"
	"github.com/chambersiq/draftflow/internal/drafts"
	"github.com/chambersiq/draftflow/internal/logbook"
	"github.com/chambersiq/draftflow/internal/logging"
	"github.com/chambersiq/draftflow/internal/workflow/client"
	"github.com/chambersiq/draftflow/internal/workflow/controller"
	"github.com/chambersiq/draftflow/internal/workflow/poller"
	"github.com/chambersiq/draftflow/internal/workflow/remote"
	"github.com/chambersiq/draftflow/internal/workflow/review"
)

// runtime is what every engine-facing command needs: config, the client
// log and a workflow client.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	client *client.Client
}

func openRuntime(opts *rootOptions) (*runtime, error) {
	dir, err := opts.dir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(dir)
	if err != nil {
		return nil, err
	}
	transport := remote.New(remote.SettingsFromConfig(cfg), remote.WithLogger(logger))
	return &runtime{
		cfg:    cfg,
		logger: logger,
		client: client.New(transport, client.WithLogger(logger)),
	}, nil
}

func (r *runtime) protocol(name string) (review.Protocol, error) {
	if name == "" {
		name = r.cfg.ReviewProtocol()
	}
	return review.ProtocolByName(name)
}

// controller wires the full stack for the terminal UI. The returned close
// func releases the draft store and exporter.
func (r *runtime) controller(ctx context.Context) (*controller.Controller, func() error, error) {
	protocol, err := r.protocol("")
	if err != nil {
		return nil, nil, err
	}
	store, err := drafts.Open(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := drafts.OpenExporter(ctx, r.cfg, r.logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	p := poller.New(r.client,
		poller.WithInterval(r.cfg.Project.Poller.Interval),
		poller.WithLogger(r.logger))

	opts := []controller.Option{
		controller.WithDraftStore(store),
		controller.WithProtocol(protocol),
		controller.WithLogger(r.logger),
		controller.WithLogbooks(func(threadID string) (*logbook.Logbook, error) {
			return logbook.New(r.cfg.WorkflowLogPath(threadID))
		}),
	}
	if exporter != nil {
		opts = append(opts, controller.WithExporter(exporter))
	}
	ctrl := controller.New(r.client, p, opts...)
	closeAll := func() error {
		var errs []error
		errs = append(errs, ctrl.Close(), store.Close())
		if exporter != nil {
			errs = append(errs, exporter.Close())
		}
		return errors.Join(errs...)
	}
	return ctrl, closeAll, nil
}

func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	return r.logger.Close()
}

func (r *runtime) logf(format string, args ...any) {
	r.logger.Printf(format, args...)
}
