package models

import "gorm.io/gorm"

type PaymentAttemptStatus string

const (
	AttemptPending   PaymentAttemptStatus = "pending"
	AttemptSucceeded PaymentAttemptStatus = "succeeded"
	AttemptFailed    PaymentAttemptStatus = "failed"
)

// PaymentAttempt is one try at collecting money for a booking via the
// external gateway. A booking has at most one pending attempt at a time;
// terminal attempts are retained for audit.
type PaymentAttempt struct {
	gorm.Model
	BookingID uint    `json:"bookingID" gorm:"not null;index"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency" gorm:"size:8"`

	GatewayMethod    string `json:"gatewayMethod" gorm:"size:32"`
	GatewayReference string `json:"gatewayReference" gorm:"size:200;index"`
	ConfirmationURL  string `json:"confirmationURL" gorm:"size:512"`

	Status PaymentAttemptStatus `json:"status" gorm:"size:16;index;default:'pending'"`

	Booking *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

// TerminalAttempt reports whether the attempt already has a final outcome.
// Gateways may redeliver callbacks; terminal attempts absorb them as no-ops.
func (a *PaymentAttempt) TerminalAttempt() bool {
	return a.Status == AttemptSucceeded || a.Status == AttemptFailed
}
