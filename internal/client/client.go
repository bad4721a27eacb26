// Package client is the terminal side of the chat: it forwards input lines to
// the server and prints what the server sends back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/andy6609/linechat/internal/lineio"
)

// QuitCommand stops forwarding input; the client exits once the server closes.
const QuitCommand = "/quit"

// maxLine bounds lines in both directions. It is larger than the server's
// inbound limit because relayed lines carry a name prefix.
const maxLine = 64 * 1024

type closeWriter interface {
	CloseWrite() error
}

// Run forwards lines from in to conn and lines from conn to out. It returns
// nil when the server closes the connection or ctx is cancelled.
func Run(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	go forward(conn, in, logger)

	r := lineio.NewReader(conn, maxLine)
	for {
		line, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("print: %w", err)
		}
	}
}

func forward(conn net.Conn, in io.Reader, logger zerolog.Logger) {
	r := lineio.NewReader(in, maxLine)
	w := lineio.NewWriter(conn)
	for {
		line, err := r.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error().Err(err).Msg("reading input")
			}
			// half-close so the server sees end of stream and hangs up
			if cw, ok := conn.(closeWriter); ok {
				_ = cw.CloseWrite()
			}
			return
		}
		if err := w.WriteLine(line); err != nil {
			logger.Debug().Err(err).Msg("send failed")
			return
		}
		if line == QuitCommand {
			return
		}
	}
}
