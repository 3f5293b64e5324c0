package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is the durable record behind every live event. The socket
// push is best effort; this row is the source of truth a client falls back
// to on its next poll or login. Immutable except for the read flag.
type Notification struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"userID" gorm:"not null;index"`
	User   User `json:"user,omitempty" gorm:"foreignKey:UserID"`

	Type    string `json:"type" gorm:"size:32;index"` // booking_created, booking_confirmed, booking_cancelled, booking_rejected, payment_succeeded, payment_failed, new_message, property_updated
	Title   string `json:"title" gorm:"size:100"`
	Message string `json:"message" gorm:"size:500"`

	// Structured reference to the triggering entity
	Payload datatypes.JSON `json:"payload"`
	RefType string         `json:"refType" gorm:"size:32"` // booking, payment, message, property
	RefID   uint           `json:"refID" gorm:"index"`

	IsRead    bool       `json:"isRead" gorm:"default:false"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}
