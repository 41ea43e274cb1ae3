// Package audit exports bookings and the credit ledger to spreadsheets.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"classbook/internal/db"
	"classbook/internal/model"
)

const (
	SheetBookings = "Bookings"
	SheetCredits  = "Credits"
)

var (
	bookingColumns = []string{"ID", "User", "Provider", "Session type", "Series", "Occurrence", "Start", "End", "Credits", "Status", "Created"}
	creditColumns  = []string{"ID", "User", "Kind", "Amount", "Booking", "Note", "Created"}
)

// Source is the data the exporter reads.
type Source interface {
	ListBookings(ctx context.Context, f db.BookingFilter) ([]model.Booking, error)
	ListTransactions(ctx context.Context, userID int64) ([]model.CreditTransaction, error)
}

// Exporter writes bookings and ledger movements of a period to XLSX.
type Exporter struct {
	source Source
	loc    *time.Location
	logger zerolog.Logger
}

// NewExporter creates an exporter rendering times in loc.
func NewExporter(source Source, loc *time.Location, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		source: source,
		loc:    loc,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// GenerateFilename creates a filename like "classbook_2025-04.xlsx".
func GenerateFilename(month time.Time) string {
	return fmt.Sprintf("classbook_%s.xlsx", month.Format("2006-01"))
}

// Export writes bookings starting and transactions created in [from, to).
func (e *Exporter) Export(ctx context.Context, w io.Writer, from, to time.Time) error {
	bookings, err := e.source.ListBookings(ctx, db.BookingFilter{From: from, To: to})
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	txs, err := e.source.ListTransactions(ctx, 0)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	book := NewWorkbook()
	defer book.Close()

	if err := book.AddSheet(SheetBookings); err != nil {
		return err
	}
	if err := book.WriteHeader(bookingColumns); err != nil {
		return err
	}
	for _, b := range bookings {
		if err := book.WriteRow([]any{
			b.ID, b.UserID, b.ProviderID, b.SessionTypeID, b.SeriesID, b.Occurrence,
			e.format(b.StartAt), e.format(b.EndAt), b.CreditCost, string(b.Status), e.format(b.CreatedAt),
		}); err != nil {
			return err
		}
	}

	if err := book.AddSheet(SheetCredits); err != nil {
		return err
	}
	if err := book.WriteHeader(creditColumns); err != nil {
		return err
	}
	written := 0
	for _, t := range txs {
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		if err := book.WriteRow([]any{
			t.ID, t.UserID, string(t.Kind), t.Amount, t.BookingID, t.Note, e.format(t.CreatedAt),
		}); err != nil {
			return err
		}
		written++
	}

	if err := book.Save(w); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	e.logger.Info().
		Time("from", from).
		Time("to", to).
		Int("bookings", len(bookings)).
		Int("transactions", written).
		Msg("Audit export written")
	return nil
}

// ExportMonthToDir writes the calendar month before now into dir and returns the file path.
func (e *Exporter) ExportMonthToDir(ctx context.Context, dir string, now time.Time) (string, error) {
	local := now.In(e.loc)
	to := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.loc)
	from := to.AddDate(0, -1, 0)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audit directory: %w", err)
	}
	path := filepath.Join(dir, GenerateFilename(from))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audit file: %w", err)
	}
	defer f.Close()

	if err := e.Export(ctx, f, from, to); err != nil {
		return "", err
	}
	return path, nil
}

// StartMonthly writes the previous month's export into dir shortly after
// each month begins, until ctx is done.
func (e *Exporter) StartMonthly(ctx context.Context, dir string, clock func() time.Time) {
	for {
		next := nextFirstOfMonth(clock().In(e.loc))
		e.logger.Info().Time("time", next).Msg("Next audit scheduled")

		timer := time.NewTimer(next.Sub(clock()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if path, err := e.ExportMonthToDir(ctx, dir, clock()); err != nil {
				e.logger.Error().Err(err).Msg("Failed to export audit data")
			} else {
				e.logger.Info().Str("path", path).Msg("Monthly audit exported")
			}
		}
	}
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

func (e *Exporter) format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format("2006-01-02 15:04")
}
