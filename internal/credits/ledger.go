// Package credits authorizes credit spending and builds ledger movements.
// Balances are never edited in place; every change is a signed transaction.
package credits

import (
	"time"

	"classbook/internal/model"
)

// Authorization is the outcome of comparing a balance to a cost.
type Authorization struct {
	Authorized bool `json:"authorized"`
	Shortfall  int  `json:"shortfall,omitempty"`
}

// Authorize reports whether balance covers cost and, if not, by how much it falls short.
func Authorize(balance, cost int) Authorization {
	if cost <= balance || cost <= 0 {
		return Authorization{Authorized: true}
	}
	return Authorization{Shortfall: cost - balance}
}

// Balance sums a user's transactions.
func Balance(txs []model.CreditTransaction) int {
	total := 0
	for _, tx := range txs {
		total += tx.Amount
	}
	return total
}

// Usage builds the debit for a booking.
func Usage(userID, bookingID int64, cost int, now time.Time) model.CreditTransaction {
	return model.CreditTransaction{
		UserID:    userID,
		Kind:      model.TxUsage,
		Amount:    -cost,
		BookingID: bookingID,
		CreatedAt: now,
	}
}

// Refund builds the compensating credit for a usage transaction.
func Refund(usage model.CreditTransaction, now time.Time) model.CreditTransaction {
	amount := -usage.Amount
	if amount < 0 {
		amount = 0
	}
	return model.CreditTransaction{
		UserID:    usage.UserID,
		Kind:      model.TxRefund,
		Amount:    amount,
		BookingID: usage.BookingID,
		Note:      "booking canceled",
		CreatedAt: now,
	}
}

// Purchase builds a credit top-up.
func Purchase(userID int64, amount int, note string, now time.Time) model.CreditTransaction {
	return model.CreditTransaction{
		UserID:    userID,
		Kind:      model.TxPurchase,
		Amount:    amount,
		Note:      note,
		CreatedAt: now,
	}
}
