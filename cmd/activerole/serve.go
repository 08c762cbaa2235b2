package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/auth"
	"github.com/LaliChicken/active-role-bot/internal/commands"
	"github.com/LaliChicken/active-role-bot/internal/discord"
	"github.com/LaliChicken/active-role-bot/internal/events"
	"github.com/LaliChicken/active-role-bot/internal/ingest"
	"github.com/LaliChicken/active-role-bot/internal/metrics"
	"github.com/LaliChicken/active-role-bot/internal/schedule"
	"github.com/LaliChicken/active-role-bot/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord, count messages and run the weekly evaluations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.close()
	if err := application.config.RequireDiscord(); err != nil {
		return err
	}
	logger := application.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collected, err := metrics.New(registry)
	if err != nil {
		return err
	}

	session, err := discord.NewSession(application.config.DiscordToken)
	if err != nil {
		return err
	}

	evaluator, err := application.newEvaluator(session, collected)
	if err != nil {
		return err
	}

	scheduler, err := schedule.NewScheduler(schedule.Config{
		Store:     application.store,
		Evaluator: evaluator,
		Logger:    logger,
		Metrics:   collected,
	})
	if err != nil {
		return err
	}

	commandService, err := commands.NewService(commands.ServiceConfig{
		Store:    application.store,
		Defaults: application.defaults(),
		Logger:   logger,
		OnChange: scheduler.Refresh,
	})
	if err != nil {
		return err
	}

	messages, err := ingest.NewHandler(ingest.HandlerConfig{
		Store:    application.store,
		Defaults: application.defaults(),
		Logger:   logger,
		Metrics:  collected,
	})
	if err != nil {
		return err
	}

	loop := events.NewLoop(events.LoopConfig{
		QueueSize: application.config.EventQueueSize,
		Logger:    logger,
		Metrics:   collected,
	})

	bot, err := discord.NewBot(discord.BotConfig{
		Session:       session,
		Loop:          loop,
		Messages:      messages,
		Commands:      commandService,
		Configs:       application.store,
		Defaults:      application.defaults(),
		AdminUserID:   application.config.AdminUserID,
		OnGuildsReady: scheduler.Refresh,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	bot.Attach(session)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return loop.Run(groupCtx)
	})

	if err := scheduler.Start(groupCtx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if err := session.Open(); err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("gateway close failed", zap.Error(err))
		}
	}()
	logger.Info("gateway connected")

	if application.config.AdminAPIEnabled() {
		httpServer, err := newHTTPServer(application, commandService, evaluator, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err != nil {
			return err
		}
		group.Go(func() error {
			logger.Info("server starting", zap.String("address", application.config.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	} else {
		logger.Info("admin api disabled, admin.user_id or admin.signing_secret is not set")
	}

	err = group.Wait()
	logger.Info("shutting down")
	return err
}

func newHTTPServer(application *app, commandService *commands.Service, evaluator server.Evaluator, metricsHandler http.Handler) (*http.Server, error) {
	tokenManager, err := auth.NewTokenIssuer(auth.DefaultTokenIssuerConfig([]byte(application.config.SigningSecret), application.config.TokenTTL))
	if err != nil {
		return nil, err
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokenManager,
		Commands:       commandService,
		Evaluator:      evaluator,
		AdminUserID:    application.config.AdminUserID,
		MetricsHandler: metricsHandler,
		Logger:         application.logger,
	})
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              application.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: shutdownTimeout,
	}, nil
}
