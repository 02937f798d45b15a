package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/MimeLyc/content-orchestrator/internal/agentsync"
	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/MimeLyc/content-orchestrator/internal/httpapi"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/llm"
	"github.com/MimeLyc/content-orchestrator/internal/news"
	"github.com/MimeLyc/content-orchestrator/internal/orchestrator"
	"github.com/MimeLyc/content-orchestrator/internal/persistence"
	"github.com/MimeLyc/content-orchestrator/internal/service"
	"github.com/MimeLyc/content-orchestrator/internal/tracking"
	"github.com/MimeLyc/content-orchestrator/internal/translator"
	"github.com/MimeLyc/content-orchestrator/internal/worker"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "path to a .env file",
		Value: ".env",
	}
	waitFlag := &cli.BoolFlag{
		Name:  "wait",
		Usage: "process the queue in this process until the job finishes",
	}

	cmd := &cli.Command{
		Name:  "content-orchestrator",
		Usage: "job orchestration for AI generated website content",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, the queue workers and the news schedule",
				Flags:  []cli.Flag{envFlag},
				Action: serveAction,
			},
			{
				Name:  "enqueue",
				Usage: "create a job and queue it",
				Flags: []cli.Flag{
					envFlag,
					waitFlag,
					&cli.StringFlag{Name: "type", Usage: "job type, e.g. GENERATE_PAGE", Required: true},
					&cli.StringFlag{Name: "input", Usage: "JSON input payload", Value: "{}"},
					&cli.StringFlag{Name: "target-language", Usage: "target language for TRANSLATE_DOCUMENT"},
				},
				Action: enqueueAction,
			},
			{
				Name:  "rerun",
				Usage: "reset a job to pending and queue it again",
				Flags: []cli.Flag{
					envFlag,
					waitFlag,
					&cli.StringFlag{Name: "id", Usage: "job id", Required: true},
				},
				Action: rerunAction,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal("%v", err)
	}
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// app is the fully wired process.
type app struct {
	cfg       *config.Config
	store     *persistence.SQLiteStore
	queue     *jobs.Queue
	worker    *worker.Worker
	triggers  *service.Triggers
	scheduler *service.Scheduler
	settings  *config.RuntimeSettingsStore
	cron      *cron.Cron
	closers   []func() error
}

// loadConfig reads configuration and installs the process logger. The returned func closes
// the log file, if any.
func loadConfig(cmd *cli.Command) (*config.Config, func(), error) {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := log.ParseLevel(cfg.System.LogLevel)
	if cfg.System.LogFile == "" {
		log.InitLogger(level)
		return cfg, func() {}, nil
	}
	fileLogger, err := log.NewFileLogger(cfg.System.LogFile, level)
	if err != nil {
		return nil, nil, err
	}
	log.SetLogger(fileLogger.Logger)
	return cfg, func() { _ = fileLogger.Close() }, nil
}

func wire(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, cron: cron.New()}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	gen, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		a.close()
		return nil, err
	}

	var cache translator.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := translator.NewRedisCacheFromConfig(ctx, cfg.Redis, cfg.Translate.CacheTTL)
		if err != nil {
			log.Warn("Redis translation cache unavailable, using memory cache: %v", err)
		} else {
			cache = redisCache
			a.closers = append(a.closers, redisCache.Close)
		}
	}

	initial := cfg.RuntimeSettings()
	path := config.RuntimeSettingsFilePath()
	if saved, err := config.LoadRuntimeSettingsFile(path); err == nil {
		initial = saved
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("Ignoring settings file %s: %v", path, err)
	}
	settings, err := config.NewRuntimeSettingsStore(path, initial)
	if err != nil {
		a.close()
		return nil, err
	}
	a.settings = settings

	backoff := jobs.ExponentialBackoff(time.Duration(cfg.Queue.BackoffMS) * time.Millisecond)
	a.queue = jobs.NewQueue(cfg.Queue.Workers, store,
		jobs.WithMaxTasks(cfg.Queue.MaxTasks),
		jobs.WithPollInterval(cfg.Queue.Poll),
		jobs.WithDefaultOptions(jobs.EnqueueOptions{Attempts: cfg.Queue.Attempts, Backoff: backoff}),
	)

	languages := cfg.Translate.LanguageCodes()
	tr := tracking.NewService(store, store, a.queue, cfg.Queue.Name)

	var source news.Source
	if cfg.News.APIKey != "" {
		source = news.NewAPITubeClient(cfg.News.APIURL, cfg.News.APIKey)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:      store,
		Docs:       store,
		Queue:      a.queue,
		QueueName:  cfg.Queue.Name,
		Generator:  gen,
		Media:      content.NewMediaUploader(store, time.Duration(cfg.Media.Timeout)*time.Second, cfg.Media.StockURL, cfg.Media.PlaceholderURL),
		Translator: translator.New(gen, cache),
		Tracking:   tr,
		AgentSync:  agentsync.NewClient(cfg.AgentSync.APIURL, cfg.AgentSync.Token),
		NewsSource: source,
		Settings:   settings,
		Languages:  languages,
		ServerURL:  cfg.Site.ServerURL,
		Retry:      cfg.Retry,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.worker = worker.New(store, orch)
	a.triggers = service.NewTriggers(store, store, a.queue, cfg.Queue.Name, tr, languages)
	a.scheduler = service.NewScheduler(a.cron, settings, a.triggers)
	return a, nil
}

func (a *app) close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("Close failed: %v", err)
		}
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpapi.NewServer(a.store, a.triggers,
		httpapi.WithTaskLister(a.queue),
		httpapi.WithScheduler(a.scheduler),
		httpapi.WithRuntimeSettingsStore(a.settings),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			return a.scheduler.Apply(ctx, next)
		}),
	)

	a.queue.Start(a.worker.Execute)
	log.Info("Queue %s started with %d workers", cfg.Queue.Name, cfg.Queue.Workers)
	return runWithComponents(ctx, cfg, a.scheduler, a.cron, srv)
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronSvc cronEngine, httpSrv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronSvc.Start()
	defer cronSvc.Stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		serveErr <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.Drain+time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func enqueueAction(ctx context.Context, cmd *cli.Command) error {
	typ, err := jobs.ParseType(cmd.String("type"))
	if err != nil {
		return err
	}
	input := json.RawMessage(cmd.String("input"))

	return withApp(ctx, cmd, func(a *app) (*jobs.Job, error) {
		return a.triggers.CreateAndEnqueue(ctx, service.CreateRequest{
			Type:           typ,
			Input:          input,
			TargetLanguage: cmd.String("target-language"),
		})
	})
}

func rerunAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *app) (*jobs.Job, error) {
		return a.triggers.Rerun(ctx, cmd.String("id"))
	})
}

// withApp runs fn against a wired app, optionally draining the queue until the job settles,
// and prints the resulting job.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*app) (*jobs.Job, error)) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := fn(a)
	if err != nil {
		return err
	}
	if cmd.Bool("wait") {
		a.queue.Start(a.worker.Execute)
		if job, err = waitForJob(ctx, a.store, job.ID); err != nil {
			return err
		}
	}
	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func waitForJob(ctx context.Context, store jobs.Store, id string) (*jobs.Job, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == jobs.StatusCompleted || job.Status == jobs.StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
