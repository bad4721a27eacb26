// Package cli holds helpers shared by the chat binaries.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/andy6609/linechat/internal/config"
)

// Interactive reports whether f is a terminal.
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ResolvePort picks the port from the first positional argument. Without one
// it prompts on out and reads a line from in when interactive is set; an empty
// answer, or no prompt at all, yields fallback.
func ResolvePort(args []string, interactive bool, in io.Reader, out io.Writer, fallback int) (int, error) {
	if len(args) > 0 {
		return parsePort(args[0])
	}
	if !interactive {
		return fallback, nil
	}

	fmt.Fprintf(out, "Please insert the port number [%d]: ", fallback)
	line, err := readLine(in)
	if err != nil {
		return 0, fmt.Errorf("read port: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return parsePort(line)
}

// readLine reads up to and including '\n' one byte at a time, so nothing past
// the answer is consumed from in.
func readLine(in io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if err := config.ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}
