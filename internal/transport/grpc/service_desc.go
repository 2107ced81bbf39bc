package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "salonsched.v1.SalonScheduler"

const (
	MethodAvailableSlots      = "/" + ServiceName + "/AvailableSlots"
	MethodCreateAppointment   = "/" + ServiceName + "/CreateAppointment"
	MethodUpdateAppointment   = "/" + ServiceName + "/UpdateAppointment"
	MethodGetAppointment      = "/" + ServiceName + "/GetAppointment"
	MethodListAppointments    = "/" + ServiceName + "/ListAppointments"
	MethodAddWaitlistEntry    = "/" + ServiceName + "/AddWaitlistEntry"
	MethodUpdateWaitlistEntry = "/" + ServiceName + "/UpdateWaitlistEntry"
	MethodListWaitlist        = "/" + ServiceName + "/ListWaitlist"
	MethodKioskLookup         = "/" + ServiceName + "/KioskLookup"
	MethodKioskCheckIn        = "/" + ServiceName + "/KioskCheckIn"
	MethodRegisterWalkIn      = "/" + ServiceName + "/RegisterWalkIn"
)

// SchedulerServer is the server API for the SalonScheduler service.
type SchedulerServer interface {
	AvailableSlots(context.Context, *AvailableSlotsRequest) (*AvailableSlotsResponse, error)
	CreateAppointment(context.Context, *CreateAppointmentRequest) (*AppointmentResponse, error)
	UpdateAppointment(context.Context, *UpdateAppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*AppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	AddWaitlistEntry(context.Context, *AddWaitlistEntryRequest) (*WaitlistEntryResponse, error)
	UpdateWaitlistEntry(context.Context, *UpdateWaitlistEntryRequest) (*WaitlistEntryResponse, error)
	ListWaitlist(context.Context, *ListWaitlistRequest) (*ListWaitlistResponse, error)
	KioskLookup(context.Context, *KioskLookupRequest) (*KioskLookupResponse, error)
	KioskCheckIn(context.Context, *KioskCheckInRequest) (*AppointmentResponse, error)
	RegisterWalkIn(context.Context, *AddWaitlistEntryRequest) (*WaitlistEntryResponse, error)
}

func RegisterSchedulerServer(s grpc.ServiceRegistrar, srv SchedulerServer) {
	s.RegisterService(&SchedulerServiceDesc, srv)
}

// unaryHandler adapts one typed method to the grpc.MethodDesc handler shape.
func unaryHandler[Req any, Resp any](fullMethod string, call func(SchedulerServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SchedulerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AvailableSlots", Handler: unaryHandler(MethodAvailableSlots, SchedulerServer.AvailableSlots)},
		{MethodName: "CreateAppointment", Handler: unaryHandler(MethodCreateAppointment, SchedulerServer.CreateAppointment)},
		{MethodName: "UpdateAppointment", Handler: unaryHandler(MethodUpdateAppointment, SchedulerServer.UpdateAppointment)},
		{MethodName: "GetAppointment", Handler: unaryHandler(MethodGetAppointment, SchedulerServer.GetAppointment)},
		{MethodName: "ListAppointments", Handler: unaryHandler(MethodListAppointments, SchedulerServer.ListAppointments)},
		{MethodName: "AddWaitlistEntry", Handler: unaryHandler(MethodAddWaitlistEntry, SchedulerServer.AddWaitlistEntry)},
		{MethodName: "UpdateWaitlistEntry", Handler: unaryHandler(MethodUpdateWaitlistEntry, SchedulerServer.UpdateWaitlistEntry)},
		{MethodName: "ListWaitlist", Handler: unaryHandler(MethodListWaitlist, SchedulerServer.ListWaitlist)},
		{MethodName: "KioskLookup", Handler: unaryHandler(MethodKioskLookup, SchedulerServer.KioskLookup)},
		{MethodName: "KioskCheckIn", Handler: unaryHandler(MethodKioskCheckIn, SchedulerServer.KioskCheckIn)},
		{MethodName: "RegisterWalkIn", Handler: unaryHandler(MethodRegisterWalkIn, SchedulerServer.RegisterWalkIn)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "salonsched/v1/scheduler.proto",
}

// SchedulerClient calls the service with the JSON codec.
type SchedulerClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulerClient(cc grpc.ClientConnInterface) *SchedulerClient {
	return &SchedulerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulerClient) AvailableSlots(ctx context.Context, in *AvailableSlotsRequest, opts ...grpc.CallOption) (*AvailableSlotsResponse, error) {
	return invoke[AvailableSlotsResponse](ctx, c.cc, MethodAvailableSlots, in, opts)
}

func (c *SchedulerClient) CreateAppointment(ctx context.Context, in *CreateAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, MethodCreateAppointment, in, opts)
}

func (c *SchedulerClient) UpdateAppointment(ctx context.Context, in *UpdateAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, MethodUpdateAppointment, in, opts)
}

func (c *SchedulerClient) GetAppointment(ctx context.Context, in *GetAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, MethodGetAppointment, in, opts)
}

func (c *SchedulerClient) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, MethodListAppointments, in, opts)
}

func (c *SchedulerClient) AddWaitlistEntry(ctx context.Context, in *AddWaitlistEntryRequest, opts ...grpc.CallOption) (*WaitlistEntryResponse, error) {
	return invoke[WaitlistEntryResponse](ctx, c.cc, MethodAddWaitlistEntry, in, opts)
}

func (c *SchedulerClient) UpdateWaitlistEntry(ctx context.Context, in *UpdateWaitlistEntryRequest, opts ...grpc.CallOption) (*WaitlistEntryResponse, error) {
	return invoke[WaitlistEntryResponse](ctx, c.cc, MethodUpdateWaitlistEntry, in, opts)
}

func (c *SchedulerClient) ListWaitlist(ctx context.Context, in *ListWaitlistRequest, opts ...grpc.CallOption) (*ListWaitlistResponse, error) {
	return invoke[ListWaitlistResponse](ctx, c.cc, MethodListWaitlist, in, opts)
}

func (c *SchedulerClient) KioskLookup(ctx context.Context, in *KioskLookupRequest, opts ...grpc.CallOption) (*KioskLookupResponse, error) {
	return invoke[KioskLookupResponse](ctx, c.cc, MethodKioskLookup, in, opts)
}

func (c *SchedulerClient) KioskCheckIn(ctx context.Context, in *KioskCheckInRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, MethodKioskCheckIn, in, opts)
}

func (c *SchedulerClient) RegisterWalkIn(ctx context.Context, in *AddWaitlistEntryRequest, opts ...grpc.CallOption) (*WaitlistEntryResponse, error) {
	return invoke[WaitlistEntryResponse](ctx, c.cc, MethodRegisterWalkIn, in, opts)
}
