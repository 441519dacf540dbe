package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/smiledesk/smiledesk/libs/schedulerpc"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
	"google.golang.org/grpc"
)

type grpcProvider struct {
	client *schedulerpc.Client
}

// NewGRPCProvider reads the schedule from the clinic service.
func NewGRPCProvider(conn grpc.ClientConnInterface) Provider {
	return &grpcProvider{client: schedulerpc.NewClient(conn)}
}

func (p *grpcProvider) WorkingHours(ctx context.Context, day time.Weekday) (availability.WorkingHours, error) {
	resp, err := p.client.GetWorkingHours(ctx, day)
	if err != nil {
		return availability.WorkingHours{}, err
	}
	if !resp.IsOpen {
		return availability.WorkingHours{}, nil
	}
	start, err := availability.ParseClock(resp.Start)
	if err != nil {
		return availability.WorkingHours{}, fmt.Errorf("clinic hours for %s: %w", day, err)
	}
	end, err := availability.ParseClock(resp.End)
	if err != nil {
		return availability.WorkingHours{}, fmt.Errorf("clinic hours for %s: %w", day, err)
	}
	h := availability.WorkingHours{IsOpen: true, Start: start, End: end}
	if err := h.Validate(); err != nil {
		return availability.WorkingHours{}, fmt.Errorf("clinic hours for %s: %w", day, err)
	}
	return h, nil
}

func (p *grpcProvider) AppointmentTypes(ctx context.Context) ([]model.AppointmentType, error) {
	resp, err := p.client.ListAppointmentTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.AppointmentType, 0, len(resp))
	for _, t := range resp {
		if t.DurationMinutes <= 0 {
			continue
		}
		out = append(out, model.AppointmentType{
			ID:              t.ID,
			Name:            t.Name,
			DurationMinutes: t.DurationMinutes,
			Color:           t.Color,
		})
	}
	return out, nil
}
