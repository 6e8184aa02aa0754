package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/remote"
)

type rootFlags struct {
	configPath string
	logLevel   string
	endpoint   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "picochat",
		Short:         "Chat widget for a remote question-answering backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "config file (json, yaml or toml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "chat endpoint URL, overrides endpoint resolution")

	cmd.AddCommand(
		newChatCmd(flags),
		newTUICmd(flags),
		newWebCmd(flags),
		newAskCmd(flags),
		newPingCmd(flags),
		newInitCmd(flags),
		newVersionCmd(),
	)

	return cmd
}

// session is what every chat surface needs at startup.
type session struct {
	cfg      *config.Config
	client   *remote.Client
	closeLog func()
}

// bootstrap loads config, sets up logging and resolves the endpoint once.
// logOut is where logs go when no log file is configured.
func bootstrap(flags *rootFlags, logOut io.Writer) (*session, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.endpoint != "" {
		cfg.Endpoint.URL = flags.endpoint
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	closeLog := func() {}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(config.ExpandHome(cfg.Log.File), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logOut = f
		closeLog = func() { _ = f.Close() }
	}
	logger.Configure(cfg.Log.Level, cfg.Log.JSON, logOut)

	endpoint, err := cfg.ResolveEndpoint()
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("resolving endpoint: %w", err)
	}
	logger.InfoCF("main", "Endpoint resolved", map[string]interface{}{
		"endpoint": endpoint,
		"timeout":  cfg.Timeout().String(),
	})

	return &session{
		cfg:      cfg,
		client:   remote.NewClient(endpoint, nil),
		closeLog: closeLog,
	}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "picochat "+version)
		},
	}
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ExpandHome(flags.configPath)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")

	return cmd
}
