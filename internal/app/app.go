// Package app wires the process together: configuration, logging, store,
// renderer, notifier, pipeline and runner, with teardown in reverse order.
package app

import (
	"context"
	"fmt"
	"time"

	"quakebot/internal/config"
	"quakebot/internal/feed"
	"quakebot/internal/metrics"
	"quakebot/internal/notify"
	"quakebot/internal/pipeline"
	"quakebot/internal/render"
	"quakebot/internal/runner"
	"quakebot/internal/store"
	"quakebot/pkg/logx"
)

// Run builds every component from env and executes the runner until it
// returns. The error, if any, is the runner's terminal error.
func Run(ctx context.Context, env config.Env) error {
	boot := logx.NewConsole(env.LogLevel)

	ovr, err := config.LoadOverrides(env.ConfigFile)
	if err != nil {
		return fmt.Errorf("overrides: %w", err)
	}

	tg, err := notify.New(notify.Config{
		Token:      env.Token,
		ChatID:     env.ChatID,
		RatePerSec: ovr.SendRatePerSec,
	}, boot)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	logSvc, log := logx.New(ovr.LogConfig(env.LogLevel), tg)
	defer logSvc.Close()
	tg.SetLogger(log.With(logx.String("component", "notify")))

	st, err := store.Open(store.Config{Path: env.StorePath}, log.With(logx.String("component", "store")))
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	renderer, err := render.New(env.MapDir, render.Options{})
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}

	stats := metrics.NewSet()
	stats.Serve(env.MetricsAddr, log.With(logx.String("component", "metrics")))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stats.Close(sctx)
	}()

	feedClient := feed.NewClient(env.FeedBaseURL, 0)
	pipe := pipeline.New(st, renderer, tg, log.With(logx.String("component", "pipeline")), stats)

	retention, err := ovr.Prune.RetentionDuration()
	if err != nil {
		return err
	}
	run := runner.New(runner.Config{
		Local:          env.Local,
		MaxRunTime:     env.MaxRunTime,
		MapDir:         env.MapDir,
		PruneSchedule:  ovr.Prune.Schedule,
		PruneRetention: retention,
	}, st, feedClient, pipe, log.With(logx.String("component", "runner")), stats)

	if env.ConfigFile != "" {
		go func() {
			err := config.Watch(ctx, env.ConfigFile, log, func(o config.Overrides) {
				logSvc.Apply(o.LogConfig(env.LogLevel))
				log.Info("configuration reloaded")
			})
			if err != nil {
				log.Warn("config watcher stopped", logx.Err(err))
			}
		}()
	}

	return run.Run(ctx)
}
