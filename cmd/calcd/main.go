// calcd is the out-of-process calculator worker. The supervisor launches
// it with one argument, the file descriptor of its end of a socketpair,
// and exchanges length-prefixed request/response frames over it. calcd
// never closes the connection per request; it runs until the supervisor
// kills it or the socket goes away.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sotecware/hubbot/pkg/calcproto"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "calcd <fd>",
		Short:        "calculator worker speaking calcproto over an inherited socket",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fd, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("fd must be a number: %w", err)
			}
			return serve(fd)
		},
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(fd int) error {
	file := os.NewFile(uintptr(fd), "calcd-socket")
	if file == nil {
		return fmt.Errorf("fd %d is not open", fd)
	}
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("wrap fd %d: %w", fd, err)
	}
	defer conn.Close()

	eval, err := newEvaluator()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	for {
		unit, expr, err := calcproto.ReadRequest(conn)
		if err != nil {
			if errors.Is(err, calcproto.ErrClosed) {
				// Supervisor went away; nothing left to serve.
				return nil
			}
			return err
		}

		result, calcErr := eval.calculate(string(unit), string(expr))
		if calcErr != nil {
			logger.Info("request failed", "error", calcErr)
			if err := calcproto.WriteResponse(conn, false, []byte(calcErr.Error())); err != nil {
				return err
			}
			continue
		}
		if err := calcproto.WriteResponse(conn, true, []byte(result)); err != nil {
			return err
		}
	}
}
