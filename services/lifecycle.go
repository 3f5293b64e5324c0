package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"shepsigrad-server/models"
	"shepsigrad-server/utils"

	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// BookingEvent names a lifecycle transition.
type BookingEvent string

const (
	EventConfirm  BookingEvent = "confirm"
	EventCancel   BookingEvent = "cancel"
	EventReject   BookingEvent = "reject"
	EventComplete BookingEvent = "complete"
)

// Actor identifies who is requesting a transition.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) isAdmin() bool {
	return a.Role == "admin"
}

// SystemActor performs scheduled transitions (completion of past stays).
var SystemActor = Actor{Role: "system"}

// transitionTable is the single source of truth for legal status moves.
// Anything not listed fails InvalidTransition and leaves the row untouched.
var transitionTable = map[BookingEvent]struct {
	From []models.BookingStatus
	To   models.BookingStatus
}{
	EventConfirm:  {From: []models.BookingStatus{models.BookingPending}, To: models.BookingConfirmed},
	EventReject:   {From: []models.BookingStatus{models.BookingPending}, To: models.BookingRejected},
	EventCancel:   {From: []models.BookingStatus{models.BookingPending, models.BookingConfirmed}, To: models.BookingCancelled},
	EventComplete: {From: []models.BookingStatus{models.BookingConfirmed}, To: models.BookingCompleted},
}

// nextBookingStatus resolves the target status for an event, or fails
// InvalidTransition when the current status is not a legal source.
func nextBookingStatus(current models.BookingStatus, event BookingEvent) (models.BookingStatus, error) {
	entry, ok := transitionTable[event]
	if !ok {
		return "", utils.NewInvalidTransition(fmt.Sprintf("unknown event %q", event))
	}
	if !slices.Contains(entry.From, current) {
		return "", utils.NewInvalidTransition(fmt.Sprintf("cannot %s a booking in status %q", event, current))
	}
	return entry.To, nil
}

// Nights counts billable nights, rounding partial days up.
func Nights(checkIn, checkOut time.Time) int {
	return int(math.Ceil(checkOut.Sub(checkIn).Hours() / 24))
}

// TotalPrice recomputes the booking price server-side. Client-sent prices
// are never consulted.
func TotalPrice(nightlyPrice, cleaningFee, serviceFee float64, nights int) float64 {
	return nightlyPrice*float64(nights) + cleaningFee + serviceFee
}

// LifecycleEngine is the single entry point for every booking mutation.
// Transitions on the same booking are serialized: an in-process per-booking
// lock orders local callers, and a compare-and-swap on updated_at rejects
// anything that raced past it.
type LifecycleEngine struct {
	db      *gorm.DB
	fanout  *Fanout
	gateway PaymentGateway

	locks sync.Map // booking id -> *sync.Mutex
}

func NewLifecycleEngine(db *gorm.DB, fanout *Fanout, gateway PaymentGateway) *LifecycleEngine {
	return &LifecycleEngine{db: db, fanout: fanout, gateway: gateway}
}

func (e *LifecycleEngine) lockFor(bookingID uint) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(bookingID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type CreateBookingInput struct {
	PropertyID  uint
	TenantID    uint
	CheckIn     time.Time
	CheckOut    time.Time
	GuestsCount int
}

// CreateBooking validates dates, guests and stay length against the
// property, recomputes the price and persists a pending booking. The owner
// is notified after commit.
func (e *LifecycleEngine) CreateBooking(in CreateBookingInput) (*models.Booking, error) {
	if !in.CheckIn.Before(in.CheckOut) {
		return nil, utils.NewValidationError("checkOut must be after checkIn")
	}
	if in.GuestsCount < 1 {
		return nil, utils.NewValidationError("guestsCount must be at least 1")
	}

	var property models.Property
	if err := e.db.First(&property, in.PropertyID).Error; err != nil {
		return nil, utils.NewNotFound("property not found")
	}
	if !property.IsActive {
		return nil, utils.NewValidationError("property is not accepting bookings")
	}
	if in.GuestsCount > property.MaxGuests {
		return nil, utils.NewValidationError(fmt.Sprintf("property sleeps at most %d guests", property.MaxGuests))
	}

	nights := Nights(in.CheckIn, in.CheckOut)
	if nights < property.MinNights {
		return nil, utils.NewValidationError(fmt.Sprintf("stay must be at least %d nights", property.MinNights))
	}
	if property.MaxNights > 0 && nights > property.MaxNights {
		return nil, utils.NewValidationError(fmt.Sprintf("stay must be at most %d nights", property.MaxNights))
	}

	booking := models.Booking{
		PropertyID:    property.ID,
		TenantID:      in.TenantID,
		OwnerID:       property.OwnerID,
		CheckIn:       in.CheckIn,
		CheckOut:      in.CheckOut,
		GuestsCount:   in.GuestsCount,
		NightlyPrice:  property.NightlyPrice,
		CleaningFee:   property.CleaningFee,
		ServiceFee:    property.ServiceFee,
		TotalPrice:    TotalPrice(property.NightlyPrice, property.CleaningFee, property.ServiceFee, nights),
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentNotPaid,
	}

	if err := e.db.Create(&booking).Error; err != nil {
		return nil, err
	}
	booking.Property = &property

	e.fanout.EmitBookingEvent("booking_created", &booking, booking.OwnerID)
	e.fanout.PushBookingStatus(&booking)

	return &booking, nil
}

// Transition applies one lifecycle event: re-read the row, validate the
// guard against the fresh state, write via compare-and-swap, then fan out
// after commit. A racing transition loses the CAS and gets ConflictError.
func (e *LifecycleEngine) Transition(bookingID uint, event BookingEvent, actor Actor, reason string) (*models.Booking, error) {
	if event == EventCancel && strings.TrimSpace(reason) == "" {
		return nil, utils.NewValidationError("cancellation reason is required")
	}

	mu := e.lockFor(bookingID)
	mu.Lock()
	defer mu.Unlock()

	var booking models.Booking
	if err := e.db.Preload("Property").First(&booking, bookingID).Error; err != nil {
		return nil, utils.NewNotFound("booking not found")
	}

	next, err := nextBookingStatus(booking.Status, event)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(&booking, event, actor); err != nil {
		return nil, err
	}
	if event == EventComplete && time.Now().Before(booking.CheckOut) {
		return nil, utils.NewInvalidTransition("booking cannot complete before checkout")
	}

	updates := map[string]interface{}{"status": next}

	if event == EventCancel {
		updates["cancellation_reason"] = strings.TrimSpace(reason)
		if booking.PaymentStatus == models.PaymentPaid {
			// Money first: the refund is synchronous and caller-visible.
			// If the gateway fails, the cancel fails and the booking stays
			// confirmed and paid for a retry.
			if err := e.refundViaGateway(&booking); err != nil {
				return nil, err
			}
			updates["payment_status"] = models.PaymentRefunded
		}
	}

	res := e.db.Model(&models.Booking{}).
		Where("id = ? AND updated_at = ?", booking.ID, booking.UpdatedAt).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewConflict("booking was modified concurrently")
	}

	if err := e.db.Preload("Property").First(&booking, bookingID).Error; err != nil {
		return nil, err
	}

	switch event {
	case EventConfirm:
		e.fanout.EmitBookingEvent("booking_confirmed", &booking, booking.TenantID)
	case EventReject:
		e.fanout.EmitBookingEvent("booking_rejected", &booking, booking.TenantID)
	case EventCancel:
		e.fanout.EmitBookingEvent("booking_cancelled", &booking, cancelRecipients(&booking, actor)...)
	case EventComplete:
		// no notification required for scheduled completion
	}
	if event != EventComplete {
		e.fanout.PushBookingStatus(&booking)
	}

	return &booking, nil
}

// cancelRecipients notifies the counterparties of the actor; an admin cancel
// notifies both sides.
func cancelRecipients(booking *models.Booking, actor Actor) []uint {
	recipients := make([]uint, 0, 2)
	if actor.UserID != booking.TenantID {
		recipients = append(recipients, booking.TenantID)
	}
	if actor.UserID != booking.OwnerID {
		recipients = append(recipients, booking.OwnerID)
	}
	return recipients
}

func authorizeTransition(booking *models.Booking, event BookingEvent, actor Actor) error {
	if actor == SystemActor {
		if event == EventComplete {
			return nil
		}
		return utils.NewForbidden("system actor may only complete bookings")
	}
	if actor.isAdmin() {
		return nil
	}

	switch event {
	case EventConfirm, EventReject:
		if actor.UserID != booking.OwnerID {
			return utils.NewForbidden("only the property owner may do this")
		}
	case EventCancel:
		if actor.UserID != booking.TenantID && actor.UserID != booking.OwnerID {
			return utils.NewForbidden("only the tenant or the property owner may cancel")
		}
	case EventComplete:
		return utils.NewForbidden("completion is a scheduled operation")
	}
	return nil
}

// refundViaGateway refunds the latest succeeded attempt of a paid booking.
func (e *LifecycleEngine) refundViaGateway(booking *models.Booking) error {
	var attempt models.PaymentAttempt
	err := e.db.Where("booking_id = ? AND status = ?", booking.ID, models.AttemptSucceeded).
		Order("id DESC").First(&attempt).Error
	if err != nil {
		log.Printf("lifecycle: paid booking %d has no succeeded attempt", booking.ID)
		return utils.NewGatewayError("no settled payment found to refund")
	}

	ctx, cancel := context.WithTimeout(context.Background(), GatewayCallTimeout)
	defer cancel()
	if err := e.gateway.Refund(ctx, attempt.GatewayReference); err != nil {
		return err
	}
	return nil
}

// ApplyPaymentOutcome moves the payment axis after a gateway callback and,
// on success against a pending booking, auto-confirms it (payment implies
// the owner-consent path). Reported back: whether auto-confirm happened.
func (e *LifecycleEngine) ApplyPaymentOutcome(bookingID uint, succeeded bool) (*models.Booking, bool, error) {
	mu := e.lockFor(bookingID)
	mu.Lock()
	defer mu.Unlock()

	var booking models.Booking
	if err := e.db.Preload("Property").First(&booking, bookingID).Error; err != nil {
		return nil, false, utils.NewNotFound("booking not found")
	}

	updates := map[string]interface{}{}
	autoConfirmed := false

	if succeeded {
		if booking.Terminal() {
			// Money arrived for a dead booking; the orchestrator owns the
			// compensating refund.
			return nil, false, utils.NewInvalidTransition(
				fmt.Sprintf("payment succeeded for booking in terminal status %q", booking.Status))
		}
		updates["payment_status"] = models.PaymentPaid
		if booking.Status == models.BookingPending {
			updates["status"] = models.BookingConfirmed
			autoConfirmed = true
		}
	} else {
		if booking.PaymentStatus == models.PaymentPaid {
			return nil, false, utils.NewInvalidTransition("booking is already paid")
		}
		updates["payment_status"] = models.PaymentFailed
	}

	res := e.db.Model(&models.Booking{}).
		Where("id = ? AND updated_at = ?", booking.ID, booking.UpdatedAt).
		Updates(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, utils.NewConflict("booking was modified concurrently")
	}

	if err := e.db.Preload("Property").First(&booking, bookingID).Error; err != nil {
		return nil, false, err
	}
	return &booking, autoConfirmed, nil
}

// ApplyRefund flips a paid booking to refunded after a successful manual
// gateway refund. Status stays where it was.
func (e *LifecycleEngine) ApplyRefund(bookingID uint) (*models.Booking, error) {
	mu := e.lockFor(bookingID)
	mu.Lock()
	defer mu.Unlock()

	var booking models.Booking
	if err := e.db.First(&booking, bookingID).Error; err != nil {
		return nil, utils.NewNotFound("booking not found")
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return nil, utils.NewInvalidState("booking is not paid")
	}

	res := e.db.Model(&models.Booking{}).
		Where("id = ? AND updated_at = ?", booking.ID, booking.UpdatedAt).
		Update("payment_status", models.PaymentRefunded)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewConflict("booking was modified concurrently")
	}

	if err := e.db.First(&booking, bookingID).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// CompleteDueBookings moves confirmed bookings whose checkout has passed to
// completed. Called from the scheduler tick and the admin endpoint.
func (e *LifecycleEngine) CompleteDueBookings() int {
	var due []models.Booking
	err := e.db.Where("status = ? AND check_out < ?", models.BookingConfirmed, time.Now()).
		Find(&due).Error
	if err != nil {
		log.Printf("lifecycle: due booking scan failed: %v", err)
		return 0
	}

	completed := 0
	for i := range due {
		if _, err := e.Transition(due[i].ID, EventComplete, SystemActor, ""); err != nil {
			log.Printf("lifecycle: completing booking %d failed: %v", due[i].ID, err)
			continue
		}
		completed++
	}
	return completed
}
