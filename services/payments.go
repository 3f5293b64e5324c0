package services

import (
	"context"
	"log"

	"shepsigrad-server/models"
	"shepsigrad-server/utils"

	"gorm.io/gorm"
)

// PaymentOrchestrator creates and tracks payment attempts against the
// external gateway and applies callbacks back onto the booking's payment
// status. It never mutates booking rows directly: every status change
// funnels through the lifecycle engine.
type PaymentOrchestrator struct {
	db      *gorm.DB
	engine  *LifecycleEngine
	fanout  *Fanout
	gateway PaymentGateway
}

func NewPaymentOrchestrator(db *gorm.DB, engine *LifecycleEngine, fanout *Fanout, gateway PaymentGateway) *PaymentOrchestrator {
	return &PaymentOrchestrator{db: db, engine: engine, fanout: fanout, gateway: gateway}
}

// CreatePayment opens a checkout session for a booking. At most one pending
// attempt may exist per booking; a new attempt is only legal while the
// booking is not_paid or failed.
func (p *PaymentOrchestrator) CreatePayment(actor Actor, bookingID uint, method, returnURL string) (*models.PaymentAttempt, error) {
	var booking models.Booking
	if err := p.db.Preload("Property").First(&booking, bookingID).Error; err != nil {
		return nil, utils.NewNotFound("booking not found")
	}
	if !actor.isAdmin() && actor.UserID != booking.TenantID {
		return nil, utils.NewForbidden("only the tenant may pay for this booking")
	}
	if booking.PaymentStatus != models.PaymentNotPaid && booking.PaymentStatus != models.PaymentFailed {
		return nil, utils.NewInvalidState("booking does not accept a new payment")
	}
	if booking.Terminal() {
		return nil, utils.NewInvalidState("booking is closed")
	}

	var pending int64
	p.db.Model(&models.PaymentAttempt{}).
		Where("booking_id = ? AND status = ?", bookingID, models.AttemptPending).
		Count(&pending)
	if pending > 0 {
		return nil, utils.NewConflict("a payment attempt is already in flight for this booking")
	}

	currency := "USD"
	if booking.Property != nil && booking.Property.Currency != "" {
		currency = booking.Property.Currency
	}

	attempt := models.PaymentAttempt{
		BookingID:     bookingID,
		Amount:        booking.TotalPrice,
		Currency:      currency,
		GatewayMethod: method,
		Status:        models.AttemptPending,
	}
	if err := p.db.Create(&attempt).Error; err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), GatewayCallTimeout)
	defer cancel()
	session, err := p.gateway.CreateCheckout(ctx, attempt.Amount, currency, returnURL)
	if err != nil {
		if appErr, ok := utils.AsAppError(err); ok && appErr.Code == utils.CodeGatewayTimeout {
			// Timeout leaves the attempt pending: the gateway may still have
			// opened the session and its callback will resolve it.
			return nil, err
		}
		p.db.Model(&attempt).Update("status", models.AttemptFailed)
		return nil, err
	}

	updates := map[string]interface{}{
		"gateway_reference": session.Reference,
		"confirmation_url":  session.ConfirmationURL,
	}
	if err := p.db.Model(&attempt).Updates(updates).Error; err != nil {
		return nil, err
	}
	attempt.GatewayReference = session.Reference
	attempt.ConfirmationURL = session.ConfirmationURL

	return &attempt, nil
}

// HandleGatewayCallback applies a gateway outcome onto the attempt and the
// booking. Idempotent: a terminal attempt absorbs redeliveries as a no-op
// and the success side effects (auto-confirm, notifications) happen at most
// once, guarded by a compare-and-swap on the attempt status.
func (p *PaymentOrchestrator) HandleGatewayCallback(attemptID uint, outcome string) (*models.PaymentAttempt, error) {
	if outcome != "succeeded" && outcome != "failed" {
		return nil, utils.NewValidationError("outcome must be succeeded or failed")
	}

	var attempt models.PaymentAttempt
	if err := p.db.First(&attempt, attemptID).Error; err != nil {
		return nil, utils.NewNotFound("payment attempt not found")
	}
	if attempt.TerminalAttempt() {
		return &attempt, nil
	}

	target := models.AttemptSucceeded
	if outcome == "failed" {
		target = models.AttemptFailed
	}

	// Winner of this CAS owns the side effects; concurrent redeliveries
	// lose and re-read the settled attempt.
	res := p.db.Model(&models.PaymentAttempt{}).
		Where("id = ? AND status = ?", attempt.ID, models.AttemptPending).
		Update("status", target)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if err := p.db.First(&attempt, attemptID).Error; err != nil {
			return nil, err
		}
		return &attempt, nil
	}
	attempt.Status = target

	booking, autoConfirmed, err := p.engine.ApplyPaymentOutcome(attempt.BookingID, outcome == "succeeded")
	if err != nil {
		if appErr, ok := utils.AsAppError(err); ok && appErr.Code == utils.CodeInvalidTransition && outcome == "succeeded" {
			// Money was captured for a booking that died in the meantime.
			// Compensate at the gateway; never leave it silently collected.
			p.compensateRefund(&attempt)
			return &attempt, nil
		}
		log.Printf("payments: applying %s callback for booking %d failed: %v", outcome, attempt.BookingID, err)
		return &attempt, nil
	}

	if outcome == "succeeded" {
		p.fanout.EmitBookingEvent("payment_succeeded", booking, booking.TenantID, booking.OwnerID)
		if autoConfirmed {
			p.fanout.EmitBookingEvent("booking_confirmed", booking, booking.TenantID)
			p.fanout.PushBookingStatus(booking)
		}
	} else {
		p.fanout.EmitBookingEvent("payment_failed", booking, booking.TenantID)
	}
	p.fanout.PushPaymentStatus(booking)

	return &attempt, nil
}

func (p *PaymentOrchestrator) compensateRefund(attempt *models.PaymentAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), GatewayCallTimeout)
	defer cancel()
	if err := p.gateway.Refund(ctx, attempt.GatewayReference); err != nil {
		log.Printf("payments: compensating refund for attempt %d failed, needs manual action: %v", attempt.ID, err)
		return
	}
	log.Printf("payments: compensating refund issued for attempt %d (terminal booking %d)", attempt.ID, attempt.BookingID)
}

// Refund refunds a paid booking at the gateway and flips its payment status.
// A gateway failure leaves the booking paid and is surfaced to the caller
// for manual retry; refunds are never silently dropped.
func (p *PaymentOrchestrator) Refund(bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	if err := p.db.First(&booking, bookingID).Error; err != nil {
		return nil, utils.NewNotFound("booking not found")
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return nil, utils.NewInvalidState("only a paid booking can be refunded")
	}

	var attempt models.PaymentAttempt
	err := p.db.Where("booking_id = ? AND status = ?", bookingID, models.AttemptSucceeded).
		Order("id DESC").First(&attempt).Error
	if err != nil {
		return nil, utils.NewGatewayError("no settled payment found to refund")
	}

	ctx, cancel := context.WithTimeout(context.Background(), GatewayCallTimeout)
	defer cancel()
	if err := p.gateway.Refund(ctx, attempt.GatewayReference); err != nil {
		return nil, err
	}

	refunded, err := p.engine.ApplyRefund(bookingID)
	if err != nil {
		return nil, err
	}
	p.fanout.PushPaymentStatus(refunded)
	return refunded, nil
}
