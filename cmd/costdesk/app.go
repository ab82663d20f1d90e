package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/costdesk/pkg/activity"
	"github.com/pario-ai/costdesk/pkg/chat"
	"github.com/pario-ai/costdesk/pkg/config"
	"github.com/pario-ai/costdesk/pkg/localstore"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/objectstore"
	"github.com/pario-ai/costdesk/pkg/quota"
	"github.com/pario-ai/costdesk/pkg/upload"
)

// keySelectedFile keeps the file picker choice between CLI invocations.
const keySelectedFile = "selectedFile"

// app holds the components shared by the subcommands.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *localstore.Store
	quota     *quota.Session
	activity  *activity.Logger
	assistant *chat.Assistant
	closers   []func()
}

func openApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	a.store, err = localstore.New(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })

	if cfg.Activity.Enabled {
		a.activity, err = activity.New(cfg.Activity)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open activity log: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.activity.Close() })
	}

	a.quota = quota.New(a.store, cfg.Quota.Limits(), log.Named("quota"))
	pipeline := chat.NewPipeline(cfg.Chat.Endpoint, cfg.Chat.Timeout, nil, log.Named("chat"))
	a.assistant = chat.NewAssistant(a.quota, pipeline, a.recorder(), log.Named("chat"))

	return a, nil
}

// recorder returns the activity log as a recorder, or nil when disabled.
func (a *app) recorder() chat.Recorder {
	if a.activity == nil {
		return nil
	}
	return a.activity
}

// uploads connects to the object store and returns a new upload session.
func (a *app) uploads(ctx context.Context) (*upload.Session, error) {
	gw, err := objectstore.NewS3(ctx, a.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	opts := []upload.Option{}
	if rec := a.recorder(); rec != nil {
		opts = append(opts, upload.WithRecorder(rec))
	}
	return upload.New(gw, a.cfg.Upload, a.log.Named("upload"), opts...), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
