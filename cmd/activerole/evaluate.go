package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/discord"
	"github.com/spf13/cobra"
)

func evaluateCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "evaluate <community-id>",
		Short: "Evaluate one community now, as the weekly job would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), cmd.OutOrStdout(), args[0], at)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Evaluate as of this RFC 3339 instant instead of now")
	return cmd
}

func runEvaluate(ctx context.Context, out io.Writer, communityID, at string) error {
	var evaluatedAt time.Time
	if at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		evaluatedAt = parsed
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.close()
	if err := application.config.RequireDiscord(); err != nil {
		return err
	}

	session, err := discord.NewSession(application.config.DiscordToken)
	if err != nil {
		return err
	}
	evaluator, err := application.newEvaluator(session, nil)
	if err != nil {
		return err
	}

	report, err := evaluator.Evaluate(ctx, communityID, evaluatedAt)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
