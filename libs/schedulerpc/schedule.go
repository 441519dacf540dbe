// Package schedulerpc is the gRPC contract between the clinic service (owner of opening hours
// and the appointment-type catalogue) and its consumers. Messages travel as
// google.protobuf.Struct so no generated code is needed.
package schedulerpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "smiledesk.clinic.v1.ClinicSchedule"

const (
	methodGetWorkingHours      = "/" + ServiceName + "/GetWorkingHours"
	methodListAppointmentTypes = "/" + ServiceName + "/ListAppointmentTypes"
)

// WorkingHours for one weekday. Start and End are "HH:MM".
type WorkingHours struct {
	Weekday time.Weekday
	IsOpen  bool
	Start   string
	End     string
}

type AppointmentType struct {
	ID              string
	Name            string
	DurationMinutes int
	Color           string
}

// ClinicScheduleServer is implemented by the clinic service.
type ClinicScheduleServer interface {
	GetWorkingHours(ctx context.Context, day time.Weekday) (WorkingHours, error)
	ListAppointmentTypes(ctx context.Context) ([]AppointmentType, error)
}

func Register(s grpc.ServiceRegistrar, srv ClinicScheduleServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClinicScheduleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetWorkingHours", Handler: getWorkingHoursHandler},
		{MethodName: "ListAppointmentTypes", Handler: listAppointmentTypesHandler},
	},
	Metadata: "smiledesk/clinic/v1/schedule.proto",
}

func getWorkingHoursHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		wd := int(req.(*structpb.Struct).GetFields()["weekday"].GetNumberValue())
		if wd < 0 || wd > 6 {
			return nil, status.Errorf(codes.InvalidArgument, "weekday %d out of range", wd)
		}
		h, err := srv.(ClinicScheduleServer).GetWorkingHours(ctx, time.Weekday(wd))
		if err != nil {
			return nil, err
		}
		return encodeHours(h)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetWorkingHours}
	return interceptor(ctx, in, info, handler)
}

func listAppointmentTypesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		types, err := srv.(ClinicScheduleServer).ListAppointmentTypes(ctx)
		if err != nil {
			return nil, err
		}
		return encodeTypes(types)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListAppointmentTypes}
	return interceptor(ctx, in, info, handler)
}

// Client calls a remote ClinicSchedule service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetWorkingHours(ctx context.Context, day time.Weekday) (WorkingHours, error) {
	in, err := structpb.NewStruct(map[string]any{"weekday": int(day)})
	if err != nil {
		return WorkingHours{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetWorkingHours, in, out); err != nil {
		return WorkingHours{}, err
	}
	return decodeHours(out)
}

func (c *Client) ListAppointmentTypes(ctx context.Context) ([]AppointmentType, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListAppointmentTypes, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return decodeTypes(out)
}

func encodeHours(h WorkingHours) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"weekday": int(h.Weekday),
		"is_open": h.IsOpen,
		"start":   h.Start,
		"end":     h.End,
	})
}

func decodeHours(s *structpb.Struct) (WorkingHours, error) {
	f := s.GetFields()
	if f == nil {
		return WorkingHours{}, fmt.Errorf("empty working hours response")
	}
	return WorkingHours{
		Weekday: time.Weekday(int(f["weekday"].GetNumberValue())),
		IsOpen:  f["is_open"].GetBoolValue(),
		Start:   f["start"].GetStringValue(),
		End:     f["end"].GetStringValue(),
	}, nil
}

func encodeTypes(types []AppointmentType) (*structpb.Struct, error) {
	list := make([]any, 0, len(types))
	for _, t := range types {
		list = append(list, map[string]any{
			"id":               t.ID,
			"name":             t.Name,
			"duration_minutes": t.DurationMinutes,
			"color":            t.Color,
		})
	}
	return structpb.NewStruct(map[string]any{"types": list})
}

func decodeTypes(s *structpb.Struct) ([]AppointmentType, error) {
	values := s.GetFields()["types"].GetListValue().GetValues()
	out := make([]AppointmentType, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		if f == nil {
			return nil, fmt.Errorf("malformed appointment type entry")
		}
		out = append(out, AppointmentType{
			ID:              f["id"].GetStringValue(),
			Name:            f["name"].GetStringValue(),
			DurationMinutes: int(f["duration_minutes"].GetNumberValue()),
			Color:           f["color"].GetStringValue(),
		})
	}
	return out, nil
}
