package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"storywatch/internal/config"
	"storywatch/internal/logging"
)

// app carries what every subcommand needs once flags and environment are read.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	var cfgFile, envFile string

	root := &cobra.Command{
		Use:           "storywatch",
		Short:         "Track news stories and deduplicate the articles behind them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			if cfgFile != "" {
				a.v.SetConfigFile(cfgFile)
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.Log.Level, cfg.Log.Pretty, cmd.ErrOrStderr())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.Int("port", 0, "Port to run the server on (default: 8080 or STORYWATCH_PORT)")
	flags.String("db-driver", "", "Store backend: sqlite or postgres")
	flags.String("db", "", "Path to the SQLite database file")
	flags.String("db-url", "", "PostgreSQL connection URL")
	flags.String("provider", "", "News provider: newsapi or rss")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "Human readable log output")
	flags.Bool("prod", false, "Enable production mode")
	cobra.CheckErr(bindFlags(a.v, flags, map[string]string{
		"port":       "port",
		"db-driver":  "db.driver",
		"db":         "db.path",
		"db-url":     "db.url",
		"provider":   "fetch.provider",
		"log-level":  "log.level",
		"log-pretty": "log.pretty",
		"prod":       "production",
	}))

	root.AddCommand(
		newServeCmd(a),
		newRefreshCmd(a),
		newMigrateCmd(a),
		newVersionCmd(),
	)
	return root
}

// bindFlags makes each flag override its config key, but only when it is set
// on the command line.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storywatch version %s\n", Version)
		},
	}
}
