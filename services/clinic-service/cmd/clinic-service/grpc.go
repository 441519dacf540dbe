package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/smiledesk/smiledesk/libs/config"
	"github.com/smiledesk/smiledesk/libs/grpcx"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/grpcserver"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, svc *clinic.Service) error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(grpcx.WithAccessLog(logger))
	hs := grpcserver.Register(srv, svc)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}
