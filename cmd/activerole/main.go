package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/LaliChicken/active-role-bot/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "activerole",
		Short:         "Weekly active-member role bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(root)

	root.AddCommand(serveCmd())
	root.AddCommand(evaluateCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(registerCommandsCmd())

	return root
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("default-timezone", defaults.GetString("activity.default_timezone"), "Timezone assigned to new communities")
	cmd.PersistentFlags().Int("default-threshold", defaults.GetInt("activity.default_threshold"), "Weekly message threshold assigned to new communities")
	cmd.PersistentFlags().String("admin-user-id", "", "Platform user id allowed to administer every community")
	cmd.PersistentFlags().String("signing-secret", "", "Admin API signing secret (overrides env)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("admin.token_ttl_minutes"), "Admin token TTL in minutes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "activity.default_timezone", "default-timezone")
	bindFlag(cmd, "activity.default_threshold", "default-threshold")
	bindFlag(cmd, "admin.user_id", "admin-user-id")
	bindFlag(cmd, "admin.signing_secret", "signing-secret")
	bindFlag(cmd, "admin.token_ttl_minutes", "token-ttl-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
