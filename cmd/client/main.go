package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andy6609/linechat/internal/cli"
	"github.com/andy6609/linechat/internal/client"
	"github.com/andy6609/linechat/internal/config"
	chatlog "github.com/andy6609/linechat/internal/log"
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
	var (
		host     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "chat [port]",
		Short:        "Connect to a chat server; stdin is sent, received lines are printed",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// honours CHAT_PORT for the default
			cfg, err := config.Load("", nil)
			if err != nil {
				return err
			}
			port, err := cli.ResolvePort(args, cli.Interactive(os.Stdin), cmd.InOrStdin(), cmd.ErrOrStderr(), cfg.Port)
			if err != nil {
				return err
			}

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return fmt.Errorf("connect %s: %w", addr, err)
			}
			defer conn.Close()

			logger := chatlog.NewWithWriter(logLevel, cmd.ErrOrStderr())
			return client.Run(cmd.Context(), conn, cmd.InOrStdin(), cmd.OutOrStdout(), *logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "server host")
	cmd.Flags().StringVar(&logLevel, "log-level", "error", "log level: debug, info, warn, error")
	return cmd
}
