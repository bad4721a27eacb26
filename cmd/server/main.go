package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/andy6609/linechat/internal/chat"
	"github.com/andy6609/linechat/internal/cli"
	"github.com/andy6609/linechat/internal/config"
	chatlog "github.com/andy6609/linechat/internal/log"
	"github.com/andy6609/linechat/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	def := config.Default()

	cmd := &cobra.Command{
		Use:          "chatsrv [port]",
		Short:        "Line-oriented TCP chat server",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			cfg.Port, err = cli.ResolvePort(args, cli.Interactive(os.Stdin), cmd.InOrStdin(), cmd.ErrOrStderr(), cfg.Port)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "path to a YAML config file")
	f.String("host", def.Host, "listen host (all interfaces when empty)")
	f.String("metrics-addr", def.MetricsAddr, "metrics listen address, disabled when empty")
	f.Int("max-line-bytes", def.MaxLineBytes, "longest accepted inbound line")
	f.Duration("write-timeout", def.WriteTimeout, "deadline for each outbound write, 0 disables")
	f.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown timeout for the metrics endpoint")
	f.String("log-level", def.LogLevel, "log level: debug, info, warn, error")

	cmd.AddCommand(newConfigCmd(&configPath))
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			data, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := chatlog.New(cfg.LogLevel)

	srv := chat.NewServer(chat.Options{
		MaxLineBytes: cfg.MaxLineBytes,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       *logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Addr())
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return telemetry.Serve(gctx, cfg.MetricsAddr, telemetry.NewHandler(srv.Roster()), cfg.ShutdownTimeout, *logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
