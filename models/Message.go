package models

import "gorm.io/gorm"

// Message is a direct message between a tenant and a landlord, usually about
// a booking. Delivery rides the same fan-out path as booking events: one
// durable new_message notification for the receiver plus a live push.
type Message struct {
	gorm.Model
	SenderID   uint   `json:"senderID" gorm:"not null;index"`
	ReceiverID uint   `json:"receiverID" gorm:"not null;index"`
	Text       string `json:"text" gorm:"size:2000"`

	// Optional reference to the booking the conversation is about
	BookingID *uint `json:"bookingID" gorm:"index"`

	Sender   *User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Receiver *User `json:"receiver,omitempty" gorm:"foreignKey:ReceiverID"`
}
