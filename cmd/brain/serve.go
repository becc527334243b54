package main

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/api"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport/rpc"
)

// #endregion

// #region serve

func serveCmd() *cobra.Command {
	var (
		addr    string
		docsDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query, plan and policy HTTP API",
		Long: `Start the HTTP API.

Examples:
  brain serve --addr :8080
  brain serve --config brain.yaml --docs ./corpus`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.API.Addr
			}
			// client references may not leave --docs; baselines are a batch concern
			pipe := a.pipe.WithResolver(pipeline.FileResolver{Base: docsDir}).WithoutBaseline()
			srv := api.New(pipe, a.cache, a.registry)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Printf("[API] shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&docsDir, "docs", ".", "document root; references outside it are rejected")
	return cmd
}

// #endregion serve

// #region model-server

func modelServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "model-server",
		Short: "Expose the scripted model over gRPC for the rpc provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			s := grpc.NewServer()
			rpc.Register(s, transport.NewScripted(nil))

			errCh := make(chan error, 1)
			go func() { errCh <- s.Serve(lis) }()
			log.Printf("[RPC] model service on %s", lis.Addr())

			select {
			case err := <-errCh:
				if errors.Is(err, grpc.ErrServerStopped) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			s.GracefulStop()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "listen address")
	return cmd
}

// #endregion model-server
