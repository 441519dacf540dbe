package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/smiledesk/smiledesk/libs/grpcx"
	"github.com/smiledesk/smiledesk/libs/schedulerpc"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/storage"
)

func dial(t *testing.T, svc *clinic.Service) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcx.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestScheduleOverGRPC(t *testing.T) {
	svc := clinic.NewService(storage.NewMemory(storage.DefaultTypes()...), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	conn := dial(t, svc)
	client := schedulerpc.NewClient(conn)
	ctx := context.Background()

	mon, err := client.GetWorkingHours(ctx, time.Monday)
	if err != nil {
		t.Fatalf("GetWorkingHours: %v", err)
	}
	if !mon.IsOpen || mon.Start != "09:00" || mon.End != "17:00" {
		t.Fatalf("unexpected monday %+v", mon)
	}
	sun, err := client.GetWorkingHours(ctx, time.Sunday)
	if err != nil || sun.IsOpen || sun.Start != "" {
		t.Fatalf("expected closed sunday, got %+v (%v)", sun, err)
	}

	types, err := client.ListAppointmentTypes(ctx)
	if err != nil {
		t.Fatalf("ListAppointmentTypes: %v", err)
	}
	if len(types) != 5 {
		t.Fatalf("expected 5 types, got %d", len(types))
	}

	if err := grpcx.HealthCheck(conn, schedulerpc.ServiceName)(ctx); err != nil {
		t.Fatalf("health check: %v", err)
	}
}
