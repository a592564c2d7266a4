// Command cideldill-demo exercises the client package against a running
// inspector server: it wraps a small host type, drives a proxied method
// call and an inline debug_call, and prints what came back.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fission-codes/cideldill/client"
)

// Calculator is the toy host type the demo wraps.
type Calculator struct{}

func (Calculator) Add(x, y int) int { return x + y }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string
	var x, y int

	cmd := &cobra.Command{
		Use:   "cideldill-demo",
		Short: "Drive a sample intercepted call against a running inspector",
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Setenv("CIDELDILL_SERVER_URL", serverURL)

			info, err := client.Debug.SetMode("ON")
			if err != nil {
				return fmt.Errorf("cideldill-demo: turning debug on: %w", err)
			}
			fmt.Printf("connected to %s (%s)\n", info.ServerURL, info.ConnectionStatus)
			defer client.Debug.SetMode("OFF")

			calc := client.Wrap(Calculator{}).(*client.Proxy)
			ctx := context.Background()

			result, err := calc.Call(ctx, "Add", x, y)
			if err != nil {
				return fmt.Errorf("cideldill-demo: proxied call: %w", err)
			}
			fmt.Printf("proxied Add(%d, %d) = %v\n", x, y, result)

			inline, err := client.DebugCall(ctx, "add-inline", func(a, b int) int { return a + b }, x, y)
			if err != nil {
				return fmt.Errorf("cideldill-demo: inline call: %w", err)
			}
			fmt.Printf("inline add(%d, %d) = %v (%s)\n", x, y, inline,
				humanize.Comma(int64(x)+int64(y))+" total")

			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:5000", "inspector server URL")
	cmd.Flags().IntVar(&x, "x", 2, "first addend")
	cmd.Flags().IntVar(&y, "y", 3, "second addend")

	return cmd
}
