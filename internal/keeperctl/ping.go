package keeperctl

import (
	"context"
	"time"

	gs "github.com/dmitrijs2005/datakeeper/internal/server/grpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewPingCommand checks that a server answers on its gRPC endpoint.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe a server over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := gs.NewClient(conn).Ping(ctx)
			if err != nil {
				return err
			}
			return output(cmd, rootOpts, addr+": "+status, map[string]string{"address": addr, "status": status})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe deadline")

	return cmd
}
