// Command cideldill-server runs the inspector: the HTTP service that
// accepts call/start, poll, call/complete, and callable/register requests
// from debugged host processes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	golog "github.com/ipfs/go-log"
	"github.com/spf13/cobra"

	"github.com/fission-codes/cideldill/server"
)

var log = golog.Logger("cideldill-server-cmd")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var listenAddr string
	var rendezvousTimeout int
	var verbose bool

	cmd := &cobra.Command{
		Use:   "cideldill-server",
		Short: "Run the cideldill call-inspection server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				golog.SetDebugLogging()
			}

			cfg := server.Config{
				ListenAddr:        listenAddr,
				RendezvousTimeout: rendezvousTimeout,
			}
			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if rendezvousTimeout > 0 {
				log.Infof("cideldill: starting on %s, abandoned pauses swept after %s",
					listenAddr, humanize.Comma(int64(rendezvousTimeout))+"s")
			} else {
				log.Infof("cideldill: starting on %s, rendezvous GC disabled", listenAddr)
			}
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:5000", "loopback address to bind the inspector to")
	cmd.Flags().IntVar(&rendezvousTimeout, "rendezvous-timeout", 300, "seconds an abandoned paused call may linger before GC, 0 disables")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}
