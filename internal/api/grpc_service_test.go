package api

import (
	"context"
	"net"
	"testing"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/domain"
	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startBufconnServer(t *testing.T, cfg config.APIConfig) (*grpc.ClientConn, *mockReservations, *mockSchedules) {
	t.Helper()
	reservations := new(mockReservations)
	schedules := new(mockSchedules)
	logger := zerolog.Nop()

	srv, err := newGRPCServer(cfg, Services{Reservations: reservations, Schedules: schedules}, &logger)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.ServeListener(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, reservations, schedules
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func TestGRPC_ReservationLifecycle(t *testing.T) {
	conn, reservations, schedules := startBufconnServer(t, config.APIConfig{})
	ctx := context.Background()

	booked := &models.Reservation{ID: 7, GuestID: 1, ScheduleID: 2, Value: 1000, Status: models.StatusReadyToPlay}
	reservations.On("BookReservation", mock.Anything, int64(1), int64(2)).Return(booked, nil).Once()
	schedules.On("FindSchedule", mock.Anything, int64(2)).Return(&models.Schedule{ID: 2, StartDateTime: slotStart}, nil)

	resp, err := call(ctx, conn, methodBook, map[string]any{"guest_id": 1, "schedule_id": "2"})
	require.NoError(t, err)
	assert.Equal(t, float64(7), resp.Fields["id"].GetNumberValue())
	assert.Equal(t, "10.00", resp.Fields["value"].GetStringValue())
	assert.Equal(t, float64(2), resp.Fields["schedule"].GetStructValue().Fields["id"].GetNumberValue())

	cancelled := &models.Reservation{ID: 7, GuestID: 1, ScheduleID: 2, Value: 0, RefundValue: 1000, Status: models.StatusCancelled}
	reservations.On("CancelReservation", mock.Anything, int64(7)).Return(cancelled, nil).Once()
	resp, err = call(ctx, conn, methodCancel, map[string]any{"reservation_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", resp.Fields["reservation_status"].GetStringValue())
	assert.Equal(t, "10.00", resp.Fields["refund_value"].GetStringValue())

	reservations.On("RescheduleReservation", mock.Anything, int64(7), int64(3)).
		Return(nil, domain.InvalidState("Cannot reschedule because it's not in ready to play status.")).Once()
	_, err = call(ctx, conn, methodReschedule, map[string]any{"reservation_id": 7, "schedule_id": 3})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, "Cannot reschedule because it's not in ready to play status.", status.Convert(err).Message())

	reservations.On("FindReservation", mock.Anything, int64(99)).Return(nil, domain.NotFound("Reservation not found.")).Once()
	_, err = call(ctx, conn, methodFind, map[string]any{"reservation_id": 99})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_ArgumentValidation(t *testing.T) {
	conn, reservations, _ := startBufconnServer(t, config.APIConfig{})
	ctx := context.Background()

	_, err := call(ctx, conn, methodBook, map[string]any{"guest_id": 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(ctx, conn, methodBook, map[string]any{"guest_id": 1.5, "schedule_id": 2})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(ctx, conn, methodBook, map[string]any{"guest_id": true, "schedule_id": 2})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(ctx, conn, methodSchedulesByDates, map[string]any{"start": "2030-01-01", "end": "2030-01-02T00:00:00Z"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	reservations.AssertNotCalled(t, "BookReservation", mock.Anything, mock.Anything, mock.Anything)
}

func TestGRPC_Schedules(t *testing.T) {
	conn, _, schedules := startBufconnServer(t, config.APIConfig{})
	ctx := context.Background()

	created := &models.Schedule{ID: 11, TennisCourtID: 1, StartDateTime: slotStart, EndDateTime: slotStart.Add(time.Hour), ReservationIDs: []int64{}}
	schedules.On("AddSchedule", mock.Anything, int64(1), slotStart).Return(created, nil).Once()
	resp, err := call(ctx, conn, methodAddSchedule, map[string]any{"tennis_court_id": 1, "start_date_time": "2030-01-03T18:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "2030-01-03T19:00:00Z", resp.Fields["end_date_time"].GetStringValue())

	schedules.On("FindCourtWithFreeSchedules", mock.Anything, int64(1)).Return(&models.TennisCourt{ID: 1, Name: "Court 1"}, []*models.Schedule{created}, nil).Once()
	resp, err = call(ctx, conn, methodFreeSchedules, map[string]any{"tennis_court_id": 1})
	require.NoError(t, err)
	assert.Len(t, resp.Fields["tennis_court_schedules"].GetListValue().GetValues(), 1)

	schedules.On("FindSchedulesByDates", mock.Anything, slotStart, slotStart.Add(time.Hour)).Return([]*models.Schedule{created}, nil).Once()
	resp, err = call(ctx, conn, methodSchedulesByDates, map[string]any{"start": "2030-01-03T18:00:00Z", "end": "2030-01-03T19:00:00Z"})
	require.NoError(t, err)
	assert.Len(t, resp.Fields["schedules"].GetListValue().GetValues(), 1)

	schedules.On("FindSchedule", mock.Anything, int64(12)).Return(nil, domain.NotFound("Schedule not found.")).Once()
	_, err = call(ctx, conn, methodFindSchedule, map[string]any{"schedule_id": 12})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_Auth(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{{Key: "reader", Extra: "r-extra", Permissions: []string{permReadSchedules}}},
		},
	}
	conn, _, schedules := startBufconnServer(t, cfg)

	schedules.On("FindSchedule", mock.Anything, int64(1)).Return(&models.Schedule{ID: 1}, nil)

	_, err := call(context.Background(), conn, methodFindSchedule, map[string]any{"schedule_id": 1})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "reader", "x-api-extra", "r-extra")
	_, err = call(ctx, conn, methodFindSchedule, map[string]any{"schedule_id": 1})
	assert.NoError(t, err)

	_, err = call(ctx, conn, methodCancel, map[string]any{"reservation_id": 1})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
