package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tenniscourts/internal/dto"

	"github.com/redis/go-redis/v9"
)

const freeSlotsCachePrefix = "client:free_schedules:court:"

// APIError is a non-2xx response of the reservation API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of an *APIError, 0 otherwise.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client calls the reservation HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache caches free slot lists. Booking, cancelling and rescheduling through
// this client drop the cached list of the affected court.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) FreeSchedules(ctx context.Context, courtID int64) (*dto.TennisCourtDTO, error) {
	key := freeSlotsCacheKey(courtID)
	var court dto.TennisCourtDTO
	if c.readCache(ctx, key, &court) {
		return &court, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/courts/%d/schedules/free", c.baseURL, courtID)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &court); err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, court)
	return &court, nil
}

func (c *Client) AddSchedule(ctx context.Context, courtID int64, start time.Time) (*dto.ScheduleDTO, error) {
	endpoint := fmt.Sprintf("%s/api/v1/courts/%d/schedules", c.baseURL, courtID)
	body := dto.CreateScheduleRequestDTO{TennisCourtID: courtID, StartDateTime: start}
	var schedule dto.ScheduleDTO
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &schedule); err != nil {
		return nil, err
	}
	c.dropCache(ctx, courtID)
	return &schedule, nil
}

func (c *Client) Book(ctx context.Context, guestID, scheduleID int64) (*dto.ReservationDTO, error) {
	endpoint := c.baseURL + "/api/v1/reservations"
	body := dto.CreateReservationRequestDTO{GuestID: guestID, ScheduleID: scheduleID}
	return c.reservationCall(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) FindReservation(ctx context.Context, reservationID int64) (*dto.ReservationDTO, error) {
	endpoint := fmt.Sprintf("%s/api/v1/reservations/%d", c.baseURL, reservationID)
	var reservation dto.ReservationDTO
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &reservation); err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (c *Client) Cancel(ctx context.Context, reservationID int64) (*dto.ReservationDTO, error) {
	endpoint := fmt.Sprintf("%s/api/v1/reservations/%d/cancel", c.baseURL, reservationID)
	return c.reservationCall(ctx, http.MethodPost, endpoint, nil)
}

func (c *Client) Reschedule(ctx context.Context, reservationID, scheduleID int64) (*dto.ReservationDTO, error) {
	endpoint := fmt.Sprintf("%s/api/v1/reservations/%d/reschedule?schedule_id=%s",
		c.baseURL, reservationID, url.QueryEscape(fmt.Sprint(scheduleID)))
	reservation, err := c.reservationCall(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if prev := reservation.PreviousReservation; prev != nil {
		c.dropCache(ctx, c.courtOf(ctx, prev))
	}
	return reservation, nil
}

func (c *Client) FindSchedule(ctx context.Context, scheduleID int64) (*dto.ScheduleDTO, error) {
	endpoint := fmt.Sprintf("%s/api/v1/schedules/%d", c.baseURL, scheduleID)
	var schedule dto.ScheduleDTO
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// courtOf resolves the court of a reservation, looking its slot up when the
// response did not embed it. Zero when unknown.
func (c *Client) courtOf(ctx context.Context, r *dto.ReservationDTO) int64 {
	if r.Schedule != nil {
		return r.Schedule.TennisCourtID
	}
	if c.redis == nil || r.ScheduleID == 0 {
		return 0
	}
	schedule, err := c.FindSchedule(ctx, r.ScheduleID)
	if err != nil {
		return 0
	}
	return schedule.TennisCourtID
}

func (c *Client) reservationCall(ctx context.Context, method, endpoint string, body any) (*dto.ReservationDTO, error) {
	var reservation dto.ReservationDTO
	if err := c.doJSON(ctx, method, endpoint, body, &reservation); err != nil {
		return nil, err
	}
	if reservation.Schedule != nil {
		c.dropCache(ctx, reservation.Schedule.TennisCourtID)
	}
	return &reservation, nil
}

func freeSlotsCacheKey(courtID int64) string {
	return fmt.Sprintf("%s%d", freeSlotsCachePrefix, courtID)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, courtID int64) {
	if c.redis == nil || courtID == 0 {
		return
	}
	_ = c.redis.Del(ctx, freeSlotsCacheKey(courtID)).Err()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
