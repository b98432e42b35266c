package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/castellan-platform/castellan/internal/app"
	"github.com/castellan-platform/castellan/internal/auth"
	"github.com/castellan-platform/castellan/internal/directory"
	"github.com/castellan-platform/castellan/internal/domains"
	"github.com/castellan-platform/castellan/internal/groups"
	"github.com/castellan-platform/castellan/internal/moderation"
	"github.com/castellan-platform/castellan/internal/observability"
	"github.com/castellan-platform/castellan/internal/permissions"
	"github.com/castellan-platform/castellan/internal/platform/cache"
	"github.com/castellan-platform/castellan/internal/platform/db"
	"github.com/castellan-platform/castellan/internal/search"
	"github.com/castellan-platform/castellan/internal/shared"
	"github.com/castellan-platform/castellan/internal/users"
	"github.com/castellan-platform/castellan/jobs"
)

const reindexInterval = time.Minute

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	adminDirectory := directory.NewRepository(pool)
	permCfg := permissions.Config{
		GroupsEnabled:       cfg.GroupsEnabled,
		ProtectedGroupNames: cfg.ProtectedGroupNames,
	}
	usersPolicy := permissions.NewUsersPolicy(permCfg, adminDirectory).Observe(metrics.RecordAuthzDecision)
	groupsPolicy := permissions.NewGroupsPolicy(permCfg, adminDirectory).Observe(metrics.RecordAuthzDecision)
	domainsPolicy := permissions.NewDomainsPolicy(permCfg, adminDirectory).Observe(metrics.RecordAuthzDecision)

	mutex := moderation.NewMutex(moderation.NewRedisLocker(redisClient), cfg.ModerationLockTTL)
	resolver := auth.NewResolver(redisClient, pool, cfg.SystemToken)

	usersRepo := users.NewRepository(pool)
	groupsRepo := groups.NewRepository(pool)
	domainsRepo := domains.NewRepository(pool)

	usersSearcher := users.NewIndexSearcher(search.NewIndex(), usersRepo)
	groupsSearcher := groups.NewIndexSearcher(search.NewIndex(), groupsRepo)
	domainsSearcher := domains.NewIndexSearcher(search.NewIndex(), domainsRepo)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	dispatcher := jobs.NewDispatcher(redisOpts)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("dispatcher close", slog.Any("error", err))
		}
	}()

	usersService := users.NewService(users.ServiceParams{
		Logger:    logger,
		Repo:      usersRepo,
		Groups:    groups.NewLookup(groupsRepo),
		Policy:    usersPolicy,
		Mutex:     mutex,
		Searcher:  usersSearcher,
		Reindexer: usersSearcher,
		Tasks:     dispatcher,
		Audit:     auditLogger,
	})
	groupsService := groups.NewService(groups.ServiceParams{
		Logger:   logger,
		Repo:     groupsRepo,
		Policy:   groupsPolicy,
		Searcher: groupsSearcher,
		Audit:    auditLogger,
	})
	domainsService := domains.NewService(domains.ServiceParams{
		Logger:   logger,
		Repo:     domainsRepo,
		Policy:   domainsPolicy,
		Searcher: domainsSearcher,
		Audit:    auditLogger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Resolver:       resolver,
		UsersHandler:   users.NewHandler(logger, usersService),
		GroupsHandler:  groups.NewHandler(logger, groupsService),
		DomainsHandler: domains.NewHandler(logger, domainsService),
		JobHandler:     jobs.NewHandler(asynq.NewInspector(redisOpts), logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := search.RunReindexLoop(groupCtx, logger, reindexInterval, map[string]search.Reindexer{
			"users":   usersSearcher,
			"groups":  groupsSearcher,
			"domains": domainsSearcher,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
