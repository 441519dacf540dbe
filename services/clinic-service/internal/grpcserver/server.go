package grpcserver

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/smiledesk/smiledesk/libs/schedulerpc"
	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
)

type server struct {
	svc *clinic.Service
}

// Register exposes svc as the ClinicSchedule RPC service together with the standard health
// service.
func Register(grpcServer *grpc.Server, svc *clinic.Service) *health.Server {
	schedulerpc.Register(grpcServer, &server{svc: svc})
	hs := health.NewServer()
	hs.SetServingStatus(schedulerpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

func (s *server) GetWorkingHours(ctx context.Context, day time.Weekday) (schedulerpc.WorkingHours, error) {
	h, err := s.svc.HoursFor(ctx, day)
	if err != nil {
		return schedulerpc.WorkingHours{}, toStatus(err)
	}
	out := schedulerpc.WorkingHours{Weekday: day, IsOpen: h.IsOpen}
	if h.IsOpen {
		out.Start = clinic.FormatMinute(h.StartMinute)
		out.End = clinic.FormatMinute(h.EndMinute)
	}
	return out, nil
}

func (s *server) ListAppointmentTypes(ctx context.Context) ([]schedulerpc.AppointmentType, error) {
	types, err := s.svc.AppointmentTypes(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]schedulerpc.AppointmentType, 0, len(types))
	for _, t := range types {
		out = append(out, schedulerpc.AppointmentType{
			ID:              t.ID,
			Name:            t.Name,
			DurationMinutes: t.DurationMinutes,
			Color:           t.Color,
		})
	}
	return out, nil
}

func toStatus(err error) error {
	if errors.Is(err, clinic.ErrInvalidHours) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}
