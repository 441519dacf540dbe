package scheduling

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/smiledesk/smiledesk/libs/schedulerpc"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type countingProvider struct {
	Provider
	hoursCalls int
	typeCalls  int
}

func (c *countingProvider) WorkingHours(ctx context.Context, day time.Weekday) (availability.WorkingHours, error) {
	c.hoursCalls++
	return c.Provider.WorkingHours(ctx, day)
}

func (c *countingProvider) AppointmentTypes(ctx context.Context) ([]model.AppointmentType, error) {
	c.typeCalls++
	return c.Provider.AppointmentTypes(ctx)
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{Provider: NewStaticProvider(availability.DefaultWeeklySchedule(), DefaultAppointmentTypes())}
	p := NewCachedProvider(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h, err := p.WorkingHours(ctx, time.Monday)
		if err != nil || !h.IsOpen {
			t.Fatalf("unexpected hours %+v (%v)", h, err)
		}
		if _, err := p.AppointmentTypes(ctx); err != nil {
			t.Fatalf("AppointmentTypes: %v", err)
		}
	}
	if inner.hoursCalls != 1 || inner.typeCalls != 1 {
		t.Fatalf("expected one upstream call each, got hours=%d types=%d", inner.hoursCalls, inner.typeCalls)
	}
}

func TestFindType(t *testing.T) {
	p := NewStaticProvider(availability.DefaultWeeklySchedule(), DefaultAppointmentTypes())
	typ, err := FindType(context.Background(), p, "root-canal")
	if err != nil || typ.DurationMinutes != 90 {
		t.Fatalf("unexpected type %+v (%v)", typ, err)
	}
	if _, err := FindType(context.Background(), p, "whitening"); !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("expected ErrTypeNotFound, got %v", err)
	}
}

type remoteSchedule struct{}

func (remoteSchedule) GetWorkingHours(_ context.Context, day time.Weekday) (schedulerpc.WorkingHours, error) {
	if day == time.Saturday {
		return schedulerpc.WorkingHours{Weekday: day, IsOpen: true, Start: "10:00", End: "09:00"}, nil
	}
	return schedulerpc.WorkingHours{Weekday: day, IsOpen: true, Start: "08:00", End: "12:30"}, nil
}

func (remoteSchedule) ListAppointmentTypes(context.Context) ([]schedulerpc.AppointmentType, error) {
	return []schedulerpc.AppointmentType{
		{ID: "a", Name: "Checkup", DurationMinutes: 30},
		{ID: "broken", Name: "Broken", DurationMinutes: 0},
	}, nil
}

func TestGRPCProvider(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	schedulerpc.Register(srv, remoteSchedule{})
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	p := NewGRPCProvider(conn)
	h, err := p.WorkingHours(context.Background(), time.Monday)
	if err != nil {
		t.Fatalf("WorkingHours: %v", err)
	}
	if h.Start != availability.MustClock("08:00") || h.End != availability.MustClock("12:30") {
		t.Fatalf("unexpected hours %+v", h)
	}
	if _, err := p.WorkingHours(context.Background(), time.Saturday); err == nil {
		t.Fatal("expected invalid remote hours to be rejected")
	}

	types, err := p.AppointmentTypes(context.Background())
	if err != nil || len(types) != 1 || types[0].ID != "a" {
		t.Fatalf("expected zero-duration type to be dropped, got %+v (%v)", types, err)
	}
}
