package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobdef"
	"jobdef/internal/api/jobfile"
	"jobdef/internal/api/models"
	"jobdef/internal/api/repo"
	"jobdef/internal/api/service"
	"jobdef/internal/realtime"
	"jobdef/pkg"
)

const (
	exitOK = iota
	exitFailure
	exitNeedsConfirmation
	exitDenied
)

var (
	envFile = flag.String("env", ".env", "environment file to load")
	file    = flag.String("f", "", "job definition file to apply")
	confirm = flag.Bool("confirm", false, "accept step validation warnings")
	watch   = flag.Bool("watch", false, "print job change notifications until interrupted")
)

func main() {
	flag.Parse()
	jobdef.InitConfig(*envFile)
	cfg := jobdef.GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watch {
		os.Exit(watchChanges(ctx, cfg))
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: jobctl -f job.yaml [-confirm] [-env .env] | jobctl -watch")
		os.Exit(exitFailure)
	}
	os.Exit(apply(ctx, cfg, *file, *confirm))
}

func apply(ctx context.Context, cfg jobdef.AppConfig, path string, confirmed bool) int {
	logger := jobdef.Logger

	doc, err := jobfile.Load(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("Failed to read job file")
		return exitFailure
	}
	jobStore, err := repo.OpenStore(cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open job store")
		return exitFailure
	}
	publisher := realtime.NewJobChangePublisher(cfg.NatsURL, cfg.TenantID, logger)
	defer publisher.Close()

	session, err := service.NewJobSession(doc.Context(), jobStore,
		service.WithLogger(logger),
		service.WithNotifier(publisher),
		service.WithSharedScheduleMinVersion(cfg.SharedScheduleMinVersion))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start edit session")
		return exitFailure
	}
	if err := session.Load(ctx); err != nil {
		logger.Error().Err(err).Str("job", doc.Job.Name).Msg("Failed to load job")
		return exitFailure
	}

	warnings, err := doc.Apply(ctx, session)
	for _, w := range warnings {
		logger.Warn().Str("file", path).Msg(w)
	}
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("Failed to apply job file")
		return exitFailure
	}

	if report := session.Validate(); report.HasWarnings() {
		if !confirmed {
			_ = pkg.PrettyPrint(os.Stdout, report)
			logger.Warn().Msg("Step validation raised warnings, run again with -confirm to accept them")
			return exitNeedsConfirmation
		}
		session.Confirm()
	}

	result, err := session.ApplyChanges(ctx)
	if err != nil {
		logger.Error().Err(err).Str("job", doc.Job.Name).Msg("Failed to save job")
		return exitFailure
	}
	if !result.Permitted {
		logger.Error().Str("job", doc.Job.Name).Msg(service.ErrPermissionDenied.Error())
		return exitDenied
	}

	logger.Info().
		Str("jobId", session.Job().ID.String()).
		Bool("created", result.JobCreated).
		Bool("steps", result.StepsChanged).
		Bool("schedules", result.SchedulesChanged).
		Bool("alerts", result.AlertsChanged).
		Msg("Job file applied")
	return exitOK
}

func watchChanges(ctx context.Context, cfg jobdef.AppConfig) int {
	watcher, err := realtime.NewJobChangeWatcher(cfg.NatsURL, cfg.TenantID)
	if err != nil {
		jobdef.Logger.Error().Err(err).Str("url", cfg.NatsURL).Msg("Failed to connect to NATS")
		return exitFailure
	}
	defer watcher.Close()

	err = watcher.Watch(func(change models.JobChange) {
		_ = pkg.PrettyPrint(os.Stdout, change)
	})
	if err != nil {
		jobdef.Logger.Error().Err(err).Msg("Failed to subscribe to job changes")
		return exitFailure
	}
	<-ctx.Done()
	return exitOK
}
