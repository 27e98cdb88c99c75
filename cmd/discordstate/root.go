package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/small-frappuccino/discordstate/pkg/app"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

const (
	envPrefix       = "DISCORDSTATE"
	defaultTokenEnv = "DISCORDSTATE_TOKEN"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           util.AppName,
		Short:         "Mirror Discord gateway state in memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(v), newVersionCmd())
	return root
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	def := app.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and serve the cache until interrupted",
		Long: `Connect to the Discord gateway and keep an in-memory mirror of its state.

Every flag can also be set through an environment variable named DISCORDSTATE_<FLAG>,
with dashes replaced by underscores (e.g. DISCORDSTATE_MAX_MESSAGES=500).`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("token-env", defaultTokenEnv, "environment variable holding the bot token")
	f.Int("max-messages", def.MaxMessages, "messages kept per channel (0 disables message caching)")
	f.Int("shard-id", def.ShardID, "gateway shard of this process")
	f.Int("shard-count", def.ShardCount, "total number of gateway shards")
	f.String("log-dir", def.LogDir, "directory for rotated log files")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.Int("log-max-size-mb", 0, "rotate a log file after this many megabytes (0 uses the default)")
	f.String("control-addr", def.ControlAddr, "listen address of the HTTP inspector (empty disables it)")
	f.Bool("archive", def.Archive.Enabled, "archive messages that leave the cache to SQLite")
	f.String("archive-db", def.Archive.Path, "path of the SQLite archive")
	f.Duration("archive-retention", def.Archive.Retention, "how long archived messages are kept (0 keeps them forever)")
	f.Int("archive-cleanup-hour", def.Archive.CleanupHour, "UTC hour of the daily archive cleanup")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.VersionString(util.AppName))
		},
	}
}

// configFromViper builds the run configuration from bound flags and environment.
func configFromViper(v *viper.Viper) (app.Config, error) {
	cfg := app.DefaultConfig()

	tokenEnv := v.GetString("token-env")
	if tokenEnv == "" {
		tokenEnv = defaultTokenEnv
	}
	token, err := util.LoadEnvWithLocalBinFallback(tokenEnv)
	if err != nil {
		return cfg, err
	}
	cfg.Token = token

	if v.IsSet("max-messages") {
		cfg.MaxMessages = v.GetInt("max-messages")
	}
	if v.IsSet("shard-id") {
		cfg.ShardID = v.GetInt("shard-id")
	}
	if v.IsSet("shard-count") {
		cfg.ShardCount = v.GetInt("shard-count")
	}
	if v.IsSet("log-dir") {
		cfg.LogDir = v.GetString("log-dir")
	}
	if v.IsSet("log-level") {
		if err := cfg.Log.Level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
			return cfg, fmt.Errorf("log level: %w", err)
		}
	}
	cfg.Log.MaxSizeMB = v.GetInt("log-max-size-mb")
	if v.IsSet("control-addr") {
		cfg.ControlAddr = v.GetString("control-addr")
	}
	if v.IsSet("archive") {
		cfg.Archive.Enabled = v.GetBool("archive")
	}
	if v.IsSet("archive-db") {
		cfg.Archive.Path = v.GetString("archive-db")
	}
	if v.IsSet("archive-retention") {
		cfg.Archive.Retention = v.GetDuration("archive-retention")
	}
	if v.IsSet("archive-cleanup-hour") {
		cfg.Archive.CleanupHour = v.GetInt("archive-cleanup-hour")
	}
	return cfg, nil
}
