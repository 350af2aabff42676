// boincrpc-mock runs a fake GUI RPC daemon with canned replies for every
// command boinccmd knows. It is meant for trying the client without a real
// BOINC installation:
//
//	boincrpc-mock --listen 127.0.0.1:31416 --password secret
//	boinccmd --passwd secret --get_host_info
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/smnsjas/go-boincrpc/boinctest"
)

type options struct {
	listen     string
	password   string
	chunkSize  int
	pollRounds int
	debug      bool
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:          "boincrpc-mock",
		Short:        "Serve canned GUI RPC replies",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), o, stderr)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&o.listen, "listen", "127.0.0.1:31416", "listen `address`")
	fs.StringVar(&o.password, "password", "", "shared secret clients must authenticate with")
	fs.IntVar(&o.chunkSize, "chunk-size", 0, "write replies this many bytes at a time (0 = whole reply)")
	fs.IntVar(&o.pollRounds, "poll-rounds", 2, "in-progress replies before a poll resolves")
	fs.BoolVar(&o.debug, "debug", false, "log every connection")
	return cmd
}

func serve(ctx context.Context, o options, stderr io.Writer) error {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	srv, err := boinctest.Listen(o.listen,
		boinctest.WithPassword(o.password),
		boinctest.WithChunkSize(o.chunkSize),
		boinctest.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer srv.Close()

	register(srv, o.pollRounds)
	logger.Info("serving", "addr", srv.Addr(), "auth", o.password != "")

	<-ctx.Done()
	logger.Info("shutting down", "requests", len(srv.Requests()))
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fang.Execute(ctx, newRootCommand(os.Stderr), fang.WithVersion(versioninfo.Short())); err != nil {
		os.Exit(1)
	}
}
