package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Расписание"

var headers = []string{"Дата", "Начало", "Конец", "Слот", "Брони", "Гости", "Сумма", "Возврат"}

type scheduleSource interface {
	CourtSchedules(ctx context.Context, courtID int64, start, end time.Time) (*models.TennisCourt, []*models.Schedule, error)
}

type reservationSource interface {
	GetReservationsByIDs(ctx context.Context, ids []int64) ([]*models.Reservation, error)
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
}

// ScheduleExporter renders a court's slots and their reservations as an xlsx workbook.
type ScheduleExporter struct {
	schedules    scheduleSource
	reservations reservationSource
	dir          string
	logger       *zerolog.Logger
}

func NewScheduleExporter(schedules scheduleSource, reservations reservationSource, dir string, logger *zerolog.Logger) *ScheduleExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ScheduleExporter{schedules: schedules, reservations: reservations, dir: dir, logger: logger}
}

// Write streams the workbook for slots starting in [from, to).
func (e *ScheduleExporter) Write(ctx context.Context, w io.Writer, courtID int64, from, to time.Time) error {
	f, err := e.Build(ctx, courtID, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveToDir writes the workbook into the exports directory and returns its path.
func (e *ScheduleExporter) SaveToDir(ctx context.Context, courtID int64, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.Build(ctx, courtID, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("court_%d_%s_to_%s.xlsx", courtID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("schedule export created")
	return filePath, nil
}

// Build assembles the workbook. The caller closes it.
func (e *ScheduleExporter) Build(ctx context.Context, courtID int64, from, to time.Time) (*excelize.File, error) {
	court, schedules, err := e.schedules.CourtSchedules(ctx, courtID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	title := fmt.Sprintf("%s: %s - %s", court.Name, from.Format("02.01.2006"), to.Format("02.01.2006"))
	_ = f.SetCellValue(sheetName, "A1", title)
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	if style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "A1", style)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	freeStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1}})
	bookedStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1}})

	for i, schedule := range schedules {
		row := i + 3
		reservations, err := e.reservations.GetReservationsByIDs(ctx, schedule.ReservationIDs)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("error getting reservations of schedule %d: %w", schedule.ID, err)
		}

		values, booked := e.rowValues(ctx, schedule, reservations)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		style := freeStyle
		if booked {
			style = bookedStyle
		}
		cell, _ := excelize.CoordinatesToCellName(4, row)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}

	_ = f.SetColWidth(sheetName, "A", "D", 14)
	_ = f.SetColWidth(sheetName, "E", "F", 40)
	_ = f.SetColWidth(sheetName, "G", "H", 12)
	return f, nil
}

func (e *ScheduleExporter) rowValues(ctx context.Context, schedule *models.Schedule, reservations []*models.Reservation) ([]interface{}, bool) {
	var (
		entries []string
		guests  []string
		value   models.Money
		refund  models.Money
		booked  bool
	)
	for _, r := range reservations {
		entries = append(entries, fmt.Sprintf("%s #%d %s", statusIcon(r.Status), r.ID, r.Status))
		guests = append(guests, e.guestName(ctx, r.GuestID))
		value += r.Value
		refund += r.RefundValue
		if r.Status == models.StatusReadyToPlay {
			booked = true
		}
	}

	slot := "Свободно"
	if booked {
		slot = "Занято"
	}

	start := schedule.StartDateTime.UTC()
	return []interface{}{
		start.Format("02.01.2006"),
		start.Format("15:04"),
		schedule.EndDateTime.UTC().Format("15:04"),
		slot,
		strings.Join(entries, "\n"),
		strings.Join(guests, "\n"),
		value.String(),
		refund.String(),
	}, booked
}

func (e *ScheduleExporter) guestName(ctx context.Context, guestID int64) string {
	guest, err := e.reservations.GetGuest(ctx, guestID)
	if err != nil || guest == nil {
		if err != nil {
			e.logger.Warn().Err(err).Int64("guest_id", guestID).Msg("export: guest lookup failed")
		}
		return fmt.Sprintf("#%d", guestID)
	}
	return guest.Name
}

func statusIcon(status models.ReservationStatus) string {
	switch status {
	case models.StatusReadyToPlay:
		return "✅"
	case models.StatusPaid:
		return "💰"
	case models.StatusCancelled:
		return "❌"
	case models.StatusRescheduled:
		return "🔁"
	default:
		return "❓"
	}
}
