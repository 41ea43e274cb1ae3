package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classbook/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AddTransaction appends a ledger movement.
func (db *DB) AddTransaction(ctx context.Context, t *model.CreditTransaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return insertTransaction(ctx, db.DB, t)
}

func insertTransaction(ctx context.Context, ex execer, t *model.CreditTransaction) error {
	var bookingID any
	if t.BookingID > 0 {
		bookingID = t.BookingID
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, kind, amount, booking_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Kind, t.Amount, bookingID, t.Note, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert %s transaction: %w", t.Kind, err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// Balance returns the running sum of a user's ledger.
func (db *DB) Balance(ctx context.Context, userID int64) (int, error) {
	return balanceTx(ctx, db.DB, userID)
}

func balanceTx(ctx context.Context, ex execer, userID int64) (int, error) {
	var balance int
	err := ex.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = ?`, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance for user %d: %w", userID, err)
	}
	return balance, nil
}

// ListTransactions returns a user's ledger, or everyone's when userID is 0.
func (db *DB) ListTransactions(ctx context.Context, userID int64) ([]model.CreditTransaction, error) {
	query := `SELECT id, user_id, kind, amount, booking_id, note, created_at FROM credit_transactions`
	var args []any
	if userID > 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var bookingID sql.NullInt64
		var note sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &bookingID, &note, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.BookingID = bookingID.Int64
		t.Note = note.String
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
