package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"tenniscourts/internal/domain"
	"tenniscourts/internal/dto"
	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
const (
	reservationServiceName = "tenniscourts.v1.ReservationService"
	scheduleServiceName    = "tenniscourts.v1.ScheduleService"

	methodBook             = "/" + reservationServiceName + "/Book"
	methodFind             = "/" + reservationServiceName + "/Find"
	methodCancel           = "/" + reservationServiceName + "/Cancel"
	methodReschedule       = "/" + reservationServiceName + "/Reschedule"
	methodAddSchedule      = "/" + scheduleServiceName + "/AddSchedule"
	methodFindSchedule     = "/" + scheduleServiceName + "/FindSchedule"
	methodFreeSchedules    = "/" + scheduleServiceName + "/FreeSchedules"
	methodSchedulesByDates = "/" + scheduleServiceName + "/SchedulesByDates"
)

type structHandler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// ReservationGRPCServer is the handler type of the reservation service descriptor.
type ReservationGRPCServer interface {
	Book(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Find(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reschedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ScheduleGRPCServer is the handler type of the schedule service descriptor.
type ScheduleGRPCServer interface {
	AddSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	FindSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	FreeSchedules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SchedulesByDates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func unaryMethod(name, fullMethod string, pick func(srv any) structHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := pick(srv)
			if interceptor == nil {
				return h(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(ctx, req.(*structpb.Struct))
			})
		},
	}
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationGRPCServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Book", methodBook, func(srv any) structHandler { return srv.(ReservationGRPCServer).Book }),
		unaryMethod("Find", methodFind, func(srv any) structHandler { return srv.(ReservationGRPCServer).Find }),
		unaryMethod("Cancel", methodCancel, func(srv any) structHandler { return srv.(ReservationGRPCServer).Cancel }),
		unaryMethod("Reschedule", methodReschedule, func(srv any) structHandler { return srv.(ReservationGRPCServer).Reschedule }),
	},
	Metadata: "tenniscourts/v1/reservations",
}

var scheduleServiceDesc = grpc.ServiceDesc{
	ServiceName: scheduleServiceName,
	HandlerType: (*ScheduleGRPCServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("AddSchedule", methodAddSchedule, func(srv any) structHandler { return srv.(ScheduleGRPCServer).AddSchedule }),
		unaryMethod("FindSchedule", methodFindSchedule, func(srv any) structHandler { return srv.(ScheduleGRPCServer).FindSchedule }),
		unaryMethod("FreeSchedules", methodFreeSchedules, func(srv any) structHandler { return srv.(ScheduleGRPCServer).FreeSchedules }),
		unaryMethod("SchedulesByDates", methodSchedulesByDates, func(srv any) structHandler { return srv.(ScheduleGRPCServer).SchedulesByDates }),
	},
	Metadata: "tenniscourts/v1/schedules",
}

// CourtsService implements both gRPC services on top of the domain services.
type CourtsService struct {
	reservations domain.ReservationService
	schedules    ScheduleAPI
	logger       *zerolog.Logger
}

func NewCourtsService(reservations domain.ReservationService, schedules ScheduleAPI, logger *zerolog.Logger) *CourtsService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CourtsService{reservations: reservations, schedules: schedules, logger: logger}
}

// Register attaches both services to the gRPC server.
func (s *CourtsService) Register(server *grpc.Server) {
	server.RegisterService(&reservationServiceDesc, s)
	server.RegisterService(&scheduleServiceDesc, s)
}

func (s *CourtsService) Book(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	guestID, err := int64Field(req, "guest_id")
	if err != nil {
		return nil, err
	}
	scheduleID, err := int64Field(req, "schedule_id")
	if err != nil {
		return nil, err
	}
	r, err := s.reservations.BookReservation(ctx, guestID, scheduleID)
	if err != nil {
		return nil, s.fail(methodBook, err)
	}
	return s.reservationReply(ctx, r)
}

func (s *CourtsService) Find(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := int64Field(req, "reservation_id")
	if err != nil {
		return nil, err
	}
	r, err := s.reservations.FindReservation(ctx, id)
	if err != nil {
		return nil, s.fail(methodFind, err)
	}
	return s.reservationReply(ctx, r)
}

func (s *CourtsService) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := int64Field(req, "reservation_id")
	if err != nil {
		return nil, err
	}
	r, err := s.reservations.CancelReservation(ctx, id)
	if err != nil {
		return nil, s.fail(methodCancel, err)
	}
	return s.reservationReply(ctx, r)
}

func (s *CourtsService) Reschedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := int64Field(req, "reservation_id")
	if err != nil {
		return nil, err
	}
	scheduleID, err := int64Field(req, "schedule_id")
	if err != nil {
		return nil, err
	}
	r, err := s.reservations.RescheduleReservation(ctx, id, scheduleID)
	if err != nil {
		return nil, s.fail(methodReschedule, err)
	}
	return s.reservationReply(ctx, r)
}

func (s *CourtsService) AddSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	courtID, err := int64Field(req, "tennis_court_id")
	if err != nil {
		return nil, err
	}
	start, err := timeField(req, "start_date_time")
	if err != nil {
		return nil, err
	}
	schedule, err := s.schedules.AddSchedule(ctx, courtID, start)
	if err != nil {
		return nil, s.fail(methodAddSchedule, err)
	}
	return toStruct(dto.FromSchedule(schedule))
}

func (s *CourtsService) FindSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := int64Field(req, "schedule_id")
	if err != nil {
		return nil, err
	}
	schedule, err := s.schedules.FindSchedule(ctx, id)
	if err != nil {
		return nil, s.fail(methodFindSchedule, err)
	}
	return toStruct(dto.FromSchedule(schedule))
}

func (s *CourtsService) FreeSchedules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	courtID, err := int64Field(req, "tennis_court_id")
	if err != nil {
		return nil, err
	}
	court, schedules, err := s.schedules.FindCourtWithFreeSchedules(ctx, courtID)
	if err != nil {
		return nil, s.fail(methodFreeSchedules, err)
	}
	return toStruct(dto.WithSchedules(court, schedules))
}

func (s *CourtsService) SchedulesByDates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start, err := timeField(req, "start")
	if err != nil {
		return nil, err
	}
	end, err := timeField(req, "end")
	if err != nil {
		return nil, err
	}
	schedules, err := s.schedules.FindSchedulesByDates(ctx, start, end)
	if err != nil {
		return nil, s.fail(methodSchedulesByDates, err)
	}
	return toStruct(map[string]any{"schedules": dto.FromSchedules(schedules)})
}

func (s *CourtsService) reservationReply(ctx context.Context, r *models.Reservation) (*structpb.Struct, error) {
	return toStruct(reservationView(ctx, s.schedules, s.logger, r))
}

func (s *CourtsService) fail(method string, err error) error {
	st := grpcStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error().Err(err).Str("method", method).Msg("grpc handler failed")
	}
	return st
}

// reservationView embeds the slots of the reservation and of the reservation it replaced.
// A failed slot lookup only drops that embedding.
func reservationView(ctx context.Context, schedules ScheduleAPI, logger *zerolog.Logger, r *models.Reservation) *dto.ReservationDTO {
	loaded := make([]*models.Schedule, 0, 2)
	for res := r; res != nil; res = res.PreviousReservation {
		schedule, err := schedules.FindSchedule(ctx, res.ScheduleID)
		if err != nil {
			logger.Warn().Err(err).Int64("reservation_id", res.ID).Msg("reservation schedule lookup failed")
			continue
		}
		loaded = append(loaded, schedule)
	}
	return dto.FromReservation(r, loaded...)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	return out, nil
}

func int64Field(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || n <= 0 || n > math.MaxInt64 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil || n <= 0 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
}

func timeField(req *structpb.Struct, name string) (time.Time, error) {
	raw := req.GetFields()[name].GetStringValue()
	if raw == "" {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid %s; expected RFC3339", name))
	}
	return t, nil
}
