package model

import "time"

// Role is a capability resolved at the authentication boundary.
type Role string

const (
	RoleMember     Role = "member"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Membership is a viewer's subscription state.
type Membership struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Tier      string     `json:"tier,omitempty"`
}

// IsActiveAt reports whether the membership grants access at now.
func (m Membership) IsActiveAt(now time.Time) bool {
	if !m.Active {
		return false
	}
	return m.ExpiresAt == nil || now.Before(*m.ExpiresAt)
}

// Viewer is the caller of a join or booking operation.
type Viewer struct {
	UserID     int64      `json:"user_id"`
	Roles      []Role     `json:"roles"`
	Membership Membership `json:"membership"`
	Credits    int        `json:"credits"`
}

// HasRole reports whether the viewer holds r.
func (v Viewer) HasRole(r Role) bool {
	for _, role := range v.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// TransactionKind classifies a credit ledger entry.
type TransactionKind string

const (
	TxPurchase        TransactionKind = "purchase"
	TxUsage           TransactionKind = "usage"
	TxRefund          TransactionKind = "refund"
	TxAdminAdjustment TransactionKind = "admin_adjustment"
)

// CreditTransaction is one signed ledger movement.
type CreditTransaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Kind      TransactionKind `json:"kind"`
	Amount    int             `json:"amount"`
	BookingID int64           `json:"booking_id,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
