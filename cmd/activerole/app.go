package main

import (
	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/config"
	"github.com/LaliChicken/active-role-bot/internal/database"
	"github.com/LaliChicken/active-role-bot/internal/discord"
	"github.com/LaliChicken/active-role-bot/internal/evaluation"
	"github.com/LaliChicken/active-role-bot/internal/logging"
	"github.com/LaliChicken/active-role-bot/internal/metrics"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds the components shared by the subcommands.
type app struct {
	config  config.AppConfig
	logger  *zap.Logger
	store   *activity.Store
	closeDB func() error
}

func newApp() (*app, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	store, err := activity.NewStore(activity.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &app{
		config:  appConfig,
		logger:  logger,
		store:   store,
		closeDB: sqlDB.Close,
	}, nil
}

func (a *app) close() {
	if err := a.closeDB(); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) defaults() activity.Defaults {
	return activity.Defaults{
		Threshold: a.config.DefaultThreshold,
		Timezone:  a.config.DefaultTimezone,
	}
}

func (a *app) newEvaluator(session *discordgo.Session, collectors *metrics.Metrics) (*evaluation.Evaluator, error) {
	platform, err := discord.NewPlatform(session, a.logger)
	if err != nil {
		return nil, err
	}
	return evaluation.NewEvaluator(evaluation.Config{
		Store:             a.store,
		Platform:          platform,
		Notifier:          platform,
		Logger:            a.logger,
		Metrics:           collectors,
		Workers:           a.config.Workers,
		CallTimeout:       a.config.CallTimeout,
		RequestsPerSecond: a.config.RequestsPerSecond,
		SummaryEnabled:    a.config.SummaryEnabled,
	})
}
