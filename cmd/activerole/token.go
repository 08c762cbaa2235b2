package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/auth"
	"github.com/LaliChicken/active-role-bot/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errAdminAPIDisabled = errors.New("admin.user_id and admin.signing_secret must be set to issue tokens")

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runToken(ctx context.Context, out io.Writer) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if !appConfig.AdminAPIEnabled() {
		return errAdminAPIDisabled
	}

	issuer, err := auth.NewTokenIssuer(auth.DefaultTokenIssuerConfig([]byte(appConfig.SigningSecret), appConfig.TokenTTL))
	if err != nil {
		return err
	}
	token, expiresIn, err := issuer.IssueAdminToken(ctx, appConfig.AdminUserID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "# expires in %s\n", time.Duration(expiresIn)*time.Second)
	return nil
}
