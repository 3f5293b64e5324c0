package models

import (
	"time"

	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRejected  BookingStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentNotPaid  PaymentStatus = "not_paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// Booking models a tenant's reservation of a property for a date range.
// Status and PaymentStatus are independent axes; every change goes through
// the lifecycle engine, never through ad hoc column updates.
type Booking struct {
	gorm.Model
	PropertyID uint `json:"propertyID" gorm:"not null;index"`
	TenantID   uint `json:"tenantID" gorm:"not null;index"`
	// OwnerID is denormalized from the property so notification routing
	// does not need a join on every transition.
	OwnerID uint `json:"ownerID" gorm:"not null;index"`

	CheckIn     time.Time `json:"checkIn"`
	CheckOut    time.Time `json:"checkOut"`
	GuestsCount int       `json:"guestsCount"`

	NightlyPrice float64 `json:"nightlyPrice"`
	CleaningFee  float64 `json:"cleaningFee"`
	ServiceFee   float64 `json:"serviceFee"`
	TotalPrice   float64 `json:"totalPrice"` // recomputed server-side, never client-supplied

	Status        BookingStatus `json:"status" gorm:"size:16;index;default:'pending'"`
	PaymentStatus PaymentStatus `json:"paymentStatus" gorm:"size:16;index;default:'not_paid'"`

	CancellationReason string `json:"cancellationReason" gorm:"size:500"`

	// Relationships
	Property *Property `json:"property,omitempty" gorm:"foreignKey:PropertyID"`
	Tenant   *User     `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// Terminal reports whether no further status transition is permitted.
func (b *Booking) Terminal() bool {
	switch b.Status {
	case BookingCompleted, BookingCancelled, BookingRejected:
		return true
	}
	return false
}
