package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"Kakofonix/astrec/internal/health"
)

var errNotServing = errors.New("capture is not active")

func newHealthCmd(stdout io.Writer) *cobra.Command {
	var (
		addr    string
		useTLS  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the health service of a running recorder",
		Long:  "Exits 0 when the recorder at --addr reports SERVING, that is, capture is active.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prober, err := health.NewProber(addr, useTLS)
			if err != nil {
				return err
			}
			defer prober.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := prober.Check(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, status)
			if status != healthpb.HealthCheckResponse_SERVING {
				return errNotServing
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7151", "address of the recorder's health service")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "connect with TLS")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall deadline")
	return cmd
}
