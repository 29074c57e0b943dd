package main

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/dagstore/peer"
)

func newServeCmd(a *app) *cobra.Command {
	var maxNodes int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored nodes to peers over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", a.cfg.Listen)
			if err != nil {
				return err
			}
			defer lis.Close()

			var opts []grpc.ServerOption
			if a.cfg.Peer.MaxMsgBytes > 0 {
				opts = append(opts,
					grpc.MaxRecvMsgSize(a.cfg.Peer.MaxMsgBytes),
					grpc.MaxSendMsgSize(a.cfg.Peer.MaxMsgBytes),
				)
			}
			gs := grpc.NewServer(opts...)
			peer.RegisterNodeExchangeServer(gs, &peer.Server{
				Store:    s,
				MaxNodes: maxNodes,
				MaxBytes: a.cfg.Peer.MaxMsgBytes / 2,
				Logger:   a.log,
			})

			var metricsSrv *http.Server
			if a.cfg.MetricsListen != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg}))
				metricsSrv = &http.Server{
					Addr:              a.cfg.MetricsListen,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("metrics server", zap.Error(err))
					}
				}()
			}

			errc := make(chan error, 1)
			go func() { errc <- gs.Serve(lis) }()
			a.log.Info("serving",
				zap.String("listen", lis.Addr().String()),
				zap.String("backend", a.cfg.Store.Backend),
				zap.String("metrics", a.cfg.MetricsListen),
			)

			select {
			case err = <-errc:
			case <-cmd.Context().Done():
				a.log.Info("shutting down")
				gs.GracefulStop()
				err = nil
			}
			if metricsSrv != nil {
				_ = metricsSrv.Close()
			}
			return err
		},
	}
	cmd.Flags().IntVar(&maxNodes, "max-response-nodes", peer.DefaultMaxNodes, "maximum nodes in one full-depth response")
	return cmd
}
