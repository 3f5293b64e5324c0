package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"shepsigrad-server/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Fanout turns one lifecycle transition into per-recipient notifications.
// The durable row is written first; the live push is a best-effort
// optimization on top of it. Nothing here ever fails the caller: the
// triggering transition has already committed.
type Fanout struct {
	db  *gorm.DB
	hub *Hub
}

func NewFanout(db *gorm.DB, hub *Hub) *Fanout {
	return &Fanout{db: db, hub: hub}
}

var notificationCopy = map[string]struct {
	Title   string
	Message string
}{
	"booking_created":   {"New Booking Request", "You have a new booking request for %s"},
	"booking_confirmed": {"Booking Confirmed", "Your booking for %s has been confirmed"},
	"booking_rejected":  {"Booking Rejected", "Your booking for %s has been rejected"},
	"booking_cancelled": {"Booking Cancelled", "The booking for %s has been cancelled"},
	"payment_succeeded": {"Payment Received", "Payment for the booking of %s succeeded"},
	"payment_failed":    {"Payment Failed", "Payment for the booking of %s failed, please try again"},
}

// EmitBookingEvent writes one notification row per recipient, then pushes a
// live notification event to each. Recipients may be written in any order;
// per-recipient ordering comes from the row's (created_at, id).
func (f *Fanout) EmitBookingEvent(eventType string, booking *models.Booking, recipients ...uint) {
	propertyTitle := fmt.Sprintf("property #%d", booking.PropertyID)
	if booking.Property != nil && booking.Property.Title != "" {
		propertyTitle = booking.Property.Title
	}

	copyFor, ok := notificationCopy[eventType]
	if !ok {
		copyFor = struct {
			Title   string
			Message string
		}{"Booking Update", "Your booking for %s was updated"}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"type":          eventType,
		"bookingId":     booking.ID,
		"propertyId":    booking.PropertyID,
		"status":        booking.Status,
		"paymentStatus": booking.PaymentStatus,
		"timestamp":     time.Now().UTC(),
	})

	for _, recipient := range recipients {
		notification := models.Notification{
			UserID:  recipient,
			Type:    eventType,
			Title:   copyFor.Title,
			Message: fmt.Sprintf(copyFor.Message, propertyTitle),
			Payload: datatypes.JSON(payload),
			RefType: "booking",
			RefID:   booking.ID,
		}
		if err := f.db.Create(&notification).Error; err != nil {
			// The push below would have no durable fallback; skip it.
			log.Printf("fanout: notification write failed for user %d: %v", recipient, err)
			continue
		}

		f.hub.PublishToUser(recipient, HubEvent{
			Name:           "notification",
			Type:           eventType,
			BookingID:      booking.ID,
			PropertyID:     booking.PropertyID,
			NotificationID: notification.ID,
			Title:          notification.Title,
			Message:        notification.Message,
		})
	}
}

// PushBookingStatus pushes the booking_status_changed live event to the
// tenant and the owner. No row is written here; the event-specific
// notification row is the durable record.
func (f *Fanout) PushBookingStatus(booking *models.Booking) {
	ev := HubEvent{
		Name:          "booking_status_changed",
		BookingID:     booking.ID,
		PropertyID:    booking.PropertyID,
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
	}
	f.hub.PublishToUser(booking.TenantID, ev)
	f.hub.PublishToUser(booking.OwnerID, ev)
}

// PushPaymentStatus pushes the payment_status_changed live event to the
// tenant and the owner.
func (f *Fanout) PushPaymentStatus(booking *models.Booking) {
	ev := HubEvent{
		Name:          "payment_status_changed",
		BookingID:     booking.ID,
		PropertyID:    booking.PropertyID,
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
	}
	f.hub.PublishToUser(booking.TenantID, ev)
	f.hub.PublishToUser(booking.OwnerID, ev)
}

// EmitMessage notifies the receiver of a new direct message.
func (f *Fanout) EmitMessage(message *models.Message, senderName string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":      "new_message",
		"messageId": message.ID,
		"senderId":  message.SenderID,
		"timestamp": time.Now().UTC(),
	})

	notification := models.Notification{
		UserID:  message.ReceiverID,
		Type:    "new_message",
		Title:   "New Message",
		Message: fmt.Sprintf("%s sent you a message", senderName),
		Payload: datatypes.JSON(payload),
		RefType: "message",
		RefID:   message.ID,
	}
	if err := f.db.Create(&notification).Error; err != nil {
		log.Printf("fanout: message notification write failed for user %d: %v", message.ReceiverID, err)
		return
	}

	f.hub.PublishToUser(message.ReceiverID, HubEvent{
		Name:           "notification",
		Type:           "new_message",
		NotificationID: notification.ID,
		Title:          notification.Title,
		Message:        notification.Message,
	})
}

// EmitPropertyUpdated relays a landlord-side property change to the tenants
// holding an active booking on it (the sync channel), and to the owner's own
// other devices via the property address.
func (f *Fanout) EmitPropertyUpdated(property *models.Property) {
	var tenantIDs []uint
	err := f.db.Model(&models.Booking{}).
		Distinct("tenant_id").
		Where("property_id = ? AND status IN ?", property.ID,
			[]models.BookingStatus{models.BookingPending, models.BookingConfirmed}).
		Pluck("tenant_id", &tenantIDs).Error
	if err != nil {
		log.Printf("fanout: tenant lookup for property %d failed: %v", property.ID, err)
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"type":       "property_updated",
		"propertyId": property.ID,
		"timestamp":  time.Now().UTC(),
	})

	for _, tenantID := range tenantIDs {
		notification := models.Notification{
			UserID:  tenantID,
			Type:    "property_updated",
			Title:   "Listing Updated",
			Message: fmt.Sprintf("%s has been updated by the host", property.Title),
			Payload: datatypes.JSON(payload),
			RefType: "property",
			RefID:   property.ID,
		}
		if err := f.db.Create(&notification).Error; err != nil {
			log.Printf("fanout: property notification write failed for user %d: %v", tenantID, err)
			continue
		}
		f.hub.PublishToUser(tenantID, HubEvent{
			Name:           "property_updated",
			Type:           "property_updated",
			PropertyID:     property.ID,
			NotificationID: notification.ID,
			Title:          notification.Title,
			Message:        notification.Message,
		})
	}

	f.hub.PublishToProperty(property.ID, HubEvent{
		Name: "property_updated",
		Type: "property_updated",
	})
}
