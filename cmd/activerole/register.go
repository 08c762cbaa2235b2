package main

import (
	"context"
	"fmt"
	"io"

	"github.com/LaliChicken/active-role-bot/internal/config"
	"github.com/LaliChicken/active-role-bot/internal/discord"
	"github.com/LaliChicken/active-role-bot/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func registerCommandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-commands",
		Short: "Replace the application's global slash commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegisterCommands(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("application-id", "", "Discord application id (overrides env)")
	if err := viper.BindPFlag("discord.application_id", cmd.Flags().Lookup("application-id")); err != nil {
		panic(err)
	}
	return cmd
}

func runRegisterCommands(ctx context.Context, out io.Writer) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := appConfig.RequireApplicationID(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	session, err := discord.NewSession(appConfig.DiscordToken)
	if err != nil {
		return err
	}
	registered, err := discord.RegisterCommands(ctx, session, appConfig.DiscordApplicationID)
	if err != nil {
		return err
	}

	for _, command := range registered {
		logger.Info("command registered", zap.String("name", command.Name), zap.String("id", command.ID))
		fmt.Fprintf(out, "/%s\n", command.Name)
	}
	return nil
}
