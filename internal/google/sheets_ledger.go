package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/events"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const dateTimeLayout = "2006-01-02 15:04:05"

var (
	errRowNotFound = errors.New("reservation row not found")
	rowInRange     = regexp.MustCompile(`![A-Z]+(\d+)`)
)

var ledgerHeaders = []interface{}{
	"Reservation ID", "Previous ID", "Guest ID", "Guest", "Court ID", "Schedule ID",
	"Start", "Status", "Value", "Refund", "Updated At",
}

// SheetsLedger mirrors every reservation as one row of a spreadsheet, keyed by reservation id in column A.
type SheetsLedger struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *zerolog.Logger

	rowCache map[int64]int
	cacheMu  sync.RWMutex
}

// NewSheetsLedger authenticates with a service account credentials file.
func NewSheetsLedger(ctx context.Context, cfg config.GoogleConfig, logger *zerolog.Logger) (*SheetsLedger, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsLedger(srv, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

func newSheetsLedger(srv *sheets.Service, spreadsheetID, sheetName string, logger *zerolog.Logger) *SheetsLedger {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if sheetName == "" {
		sheetName = "Reservations"
	}
	return &SheetsLedger{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
		rowCache:      make(map[int64]int),
	}
}

// TestConnection reads the header cell of the ledger sheet.
func (s *SheetsLedger) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (s *SheetsLedger) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1:K1", &sheets.ValueRange{
		Values: [][]interface{}{ledgerHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache loads the reservation id to row mapping from column A.
func (s *SheetsLedger) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.idColumn()).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// Handle implements domain.TaskHandler for events.ReservationEventPayload tasks.
func (s *SheetsLedger) Handle(ctx context.Context, payload []byte) error {
	var p events.ReservationEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reservation payload: %w", err)
	}
	return s.UpsertReservation(ctx, &p)
}

// UpsertReservation rewrites the reservation row in place or appends a new one.
func (s *SheetsLedger) UpsertReservation(ctx context.Context, p *events.ReservationEventPayload) error {
	if p == nil || p.ReservationID == 0 {
		return errors.New("reservation id is required")
	}

	rowIdx, err := s.FindReservationRow(ctx, p.ReservationID)
	if errors.Is(err, errRowNotFound) {
		return s.appendReservation(ctx, p)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:K%d", s.sheetName, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(p)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.logger.Debug().Int64("reservation_id", p.ReservationID).Int("row", rowIdx).Msg("ledger row updated")
	return nil
}

func (s *SheetsLedger) appendReservation(ctx context.Context, p *events.ReservationEventPayload) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.idColumn(), &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(p)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := parseRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(p.ReservationID, row)
		}
	}
	s.logger.Debug().Int64("reservation_id", p.ReservationID).Msg("ledger row appended")
	return nil
}

// FindReservationRow returns the 1-based sheet row of the reservation.
func (s *SheetsLedger) FindReservationRow(ctx context.Context, reservationID int64) (int, error) {
	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.idColumn()).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if len(row) > 0 && cellID(row[0]) == reservationID {
			s.setCachedRow(reservationID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsLedger) idColumn() string {
	return s.sheetName + "!A:A"
}

func (s *SheetsLedger) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsLedger) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func reservationRowValues(p *events.ReservationEventPayload) []interface{} {
	var previous interface{} = ""
	if p.PreviousReservationID != 0 {
		previous = p.PreviousReservationID
	}
	updated := p.OccurredAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []interface{}{
		p.ReservationID,
		previous,
		p.GuestID,
		p.GuestName,
		p.TennisCourtID,
		p.ScheduleID,
		p.StartDateTime.UTC().Format(dateTimeLayout),
		p.Status,
		p.Value,
		p.RefundValue,
		updated.UTC().Format(dateTimeLayout),
	}
}

// cells come back as numbers or strings depending on how the row was written
func cellID(v interface{}) int64 {
	switch id := v.(type) {
	case float64:
		return int64(id)
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func parseRow(updatedRange string) (int, bool) {
	m := rowInRange.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
