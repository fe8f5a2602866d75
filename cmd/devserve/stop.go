package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jpalmerr/devserve"
	"github.com/jpalmerr/devserve/internal/control"
	"github.com/spf13/cobra"
)

// stopCmd sends a control datagram to a running server.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running server",
	Long: `Send the "shutdown" datagram to a running server's UDP control port.

The control protocol has no reply, so success only means the datagram was
sent. A server that is not running is not reported as an error.

Example:
  devserve stop
  devserve stop --host 192.168.1.20 --control-port 9001`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().String("host", "127.0.0.1", "server host")
	stopCmd.Flags().Int("control-port", devserve.DefaultControlPort, "UDP control port")
	stopCmd.Flags().String("payload", string(control.CommandShutdown), "datagram payload")
	stopCmd.Flags().Duration("timeout", 2*time.Second, "send timeout")
}

func runStop(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("control-port")
	payload, _ := cmd.Flags().GetString("payload")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := control.Send(ctx, addr, payload); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent %q to %s\n", payload, addr)
	return nil
}
