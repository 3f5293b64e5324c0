package services

import (
	"testing"
	"time"

	"shepsigrad-server/models"
	"shepsigrad-server/utils"
)

func TestNightsRoundsPartialDaysUp(t *testing.T) {
	checkIn := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	if got := Nights(checkIn, checkIn.AddDate(0, 0, 9)); got != 9 {
		t.Fatalf("expected 9 nights, got %d", got)
	}
	// 9 days and 6 hours bills as 10 nights
	if got := Nights(checkIn, checkIn.AddDate(0, 0, 9).Add(6*time.Hour)); got != 10 {
		t.Fatalf("expected 10 nights for partial day, got %d", got)
	}
}

func TestTotalPriceFormula(t *testing.T) {
	if got := TotalPrice(100, 0, 100, 9); got != 1000 {
		t.Fatalf("expected 1000, got %v", got)
	}
	if got := TotalPrice(80, 25, 10, 3); got != 275 {
		t.Fatalf("expected 275, got %v", got)
	}
}

func TestTransitionTableIsExhaustive(t *testing.T) {
	statuses := []models.BookingStatus{
		models.BookingPending, models.BookingConfirmed, models.BookingCompleted,
		models.BookingCancelled, models.BookingRejected,
	}
	events := []BookingEvent{EventConfirm, EventReject, EventCancel, EventComplete}

	allowed := map[BookingEvent]map[models.BookingStatus]models.BookingStatus{
		EventConfirm:  {models.BookingPending: models.BookingConfirmed},
		EventReject:   {models.BookingPending: models.BookingRejected},
		EventCancel:   {models.BookingPending: models.BookingCancelled, models.BookingConfirmed: models.BookingCancelled},
		EventComplete: {models.BookingConfirmed: models.BookingCompleted},
	}

	for _, event := range events {
		for _, status := range statuses {
			next, err := nextBookingStatus(status, event)
			want, ok := allowed[event][status]
			if ok {
				if err != nil {
					t.Errorf("%s from %s: unexpected error %v", event, status, err)
				} else if next != want {
					t.Errorf("%s from %s: got %s, want %s", event, status, next, want)
				}
				continue
			}
			if err == nil {
				t.Errorf("%s from %s: expected InvalidTransition, got %s", event, status, next)
				continue
			}
			appErr, isApp := utils.AsAppError(err)
			if !isApp || appErr.Code != utils.CodeInvalidTransition {
				t.Errorf("%s from %s: expected InvalidTransition code, got %v", event, status, err)
			}
		}
	}
}

func TestCreateBookingComputesPriceServerSide(t *testing.T) {
	s := newTestStack(t)

	booking := s.createBooking(t)

	if booking.Status != models.BookingPending {
		t.Fatalf("expected pending, got %s", booking.Status)
	}
	if booking.PaymentStatus != models.PaymentNotPaid {
		t.Fatalf("expected not_paid, got %s", booking.PaymentStatus)
	}
	// 9 nights * 100 + 0 cleaning + 100 service
	if booking.TotalPrice != 1000 {
		t.Fatalf("expected total 1000, got %v", booking.TotalPrice)
	}
	if booking.OwnerID != s.landlord.ID {
		t.Fatalf("owner id not denormalized")
	}

	if got := notificationCount(t, s.db, s.landlord.ID, "booking_created"); got != 1 {
		t.Fatalf("expected 1 booking_created notification for owner, got %d", got)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	s := newTestStack(t)
	checkIn := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input CreateBookingInput
	}{
		{"checkOut before checkIn", CreateBookingInput{
			PropertyID: s.property.ID, TenantID: s.tenant.ID,
			CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, -1), GuestsCount: 1,
		}},
		{"zero guests", CreateBookingInput{
			PropertyID: s.property.ID, TenantID: s.tenant.ID,
			CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 2), GuestsCount: 0,
		}},
		{"too many guests", CreateBookingInput{
			PropertyID: s.property.ID, TenantID: s.tenant.ID,
			CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 2), GuestsCount: 10,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.engine.CreateBooking(tc.input)
			appErr, ok := utils.AsAppError(err)
			if !ok || appErr.Code != utils.CodeValidation {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateBookingRespectsStayBounds(t *testing.T) {
	s := newTestStack(t)
	s.db.Model(s.property).Updates(map[string]interface{}{"min_nights": 3, "max_nights": 7})

	checkIn := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.engine.CreateBooking(CreateBookingInput{
		PropertyID: s.property.ID, TenantID: s.tenant.ID,
		CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 2), GuestsCount: 1,
	})
	if appErr, ok := utils.AsAppError(err); !ok || appErr.Code != utils.CodeValidation {
		t.Fatalf("expected ValidationError for short stay, got %v", err)
	}

	_, err = s.engine.CreateBooking(CreateBookingInput{
		PropertyID: s.property.ID, TenantID: s.tenant.ID,
		CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 10), GuestsCount: 1,
	})
	if appErr, ok := utils.AsAppError(err); !ok || appErr.Code != utils.CodeValidation {
		t.Fatalf("expected ValidationError for long stay, got %v", err)
	}
}

func TestCreateBookingInactiveProperty(t *testing.T) {
	s := newTestStack(t)
	s.db.Model(s.property).Update("is_active", false)

	checkIn := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.engine.CreateBooking(CreateBookingInput{
		PropertyID: s.property.ID, TenantID: s.tenant.ID,
		CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 2), GuestsCount: 1,
	})
	if appErr, ok := utils.AsAppError(err); !ok || appErr.Code != utils.CodeValidation {
		t.Fatalf("expected ValidationError for inactive property, got %v", err)
	}
}

func TestConfirmThenCancelFlow(t *testing.T) {
	s := newTestStack(t)
	booking := s.createBooking(t)

	confirmed, err := s.engine.Transition(booking.ID, EventConfirm, s.ownerActor(), "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != models.BookingConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}
	if got := notificationCount(t, s.db, s.tenant.ID, "booking_confirmed"); got != 1 {
		t.Fatalf("expected 1 booking_confirmed for tenant, got %d", got)
	}

	cancelled, err := s.engine.Transition(booking.ID, EventCancel, s.tenantActor(), "change of plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.BookingCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancellationReason != "change of plans" {
		t.Fatalf("reason not stored: %q", cancelled.CancellationReason)
	}
	// counterparty of the tenant is the owner
	if got := notificationCount(t, s.db, s.landlord.ID, "booking_cancelled"); got != 1 {
		t.Fatalf("expected 1 booking_cancelled for owner, got %d", got)
	}
	if got := notificationCount(t, s.db, s.tenant.ID, "booking_cancelled"); got != 0 {
		t.Fatalf("tenant should not be notified of their own cancel, got %d", got)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	s := newTestStack(t)
	booking := s.createBooking(t)

	var before models.Booking
	s.db.First(&before, booking.ID)

	_, err := s.engine.Transition(booking.ID, EventCancel, s.tenantActor(), "  ")
	appErr, ok := utils.AsAppError(err)
	if !ok || appErr.Code != utils.CodeValidation {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	var after models.Booking
	s.db.First(&after, booking.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Status != before.Status {
		t.Fatalf("row mutated by rejected transition")
	}
}

func TestTerminalStatusesAcceptNoTransition(t *testing.T) {
	s := newTestStack(t)

	for _, terminal := range []models.BookingStatus{
		models.BookingCompleted, models.BookingCancelled, models.BookingRejected,
	} {
		booking := s.createBooking(t)
		s.db.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("status", terminal)

		var before models.Booking
		s.db.First(&before, booking.ID)

		for _, event := range []BookingEvent{EventConfirm, EventReject, EventCancel, EventComplete} {
			_, err := s.engine.Transition(booking.ID, event, Actor{UserID: s.landlord.ID, Role: "admin"}, "because")
			appErr, ok := utils.AsAppError(err)
			if !ok || appErr.Code != utils.CodeInvalidTransition {
				t.Fatalf("%s from terminal %s: expected InvalidTransition, got %v", event, terminal, err)
			}
		}

		var after models.Booking
		s.db.First(&after, booking.ID)
		if !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatalf("updated_at changed by rejected transitions on %s", terminal)
		}
	}
}

func TestTransitionAuthorization(t *testing.T) {
	s := newTestStack(t)
	booking := s.createBooking(t)

	// tenant cannot confirm their own booking
	_, err := s.engine.Transition(booking.ID, EventConfirm, s.tenantActor(), "")
	if appErr, ok := utils.AsAppError(err); !ok || appErr.Code != utils.CodeForbidden {
		t.Fatalf("expected Forbidden for tenant confirm, got %v", err)
	}

	// a stranger cannot cancel
	stranger := seedUser(t, s.db, "tenant")
	_, err = s.engine.Transition(booking.ID, EventCancel, Actor{UserID: stranger.ID, Role: "tenant"}, "nope")
	if appErr, ok := utils.AsAppError(err); !ok || appErr.Code != utils.CodeForbidden {
		t.Fatalf("expected Forbidden for stranger cancel, got %v", err)
	}

	// admin can reject
	admin := seedUser(t, s.db, "admin")
	if _, err := s.engine.Transition(booking.ID, EventReject, Actor{UserID: admin.ID, Role: "admin"}, ""); err != nil {
		t.Fatalf("admin reject: %v", err)
	}
}

func TestConcurrentCancelConfirmOneWinner(t *testing.T) {
	s := newTestStack(t)
	booking := s.createBooking(t)

	results := make(chan error, 2)
	go func() {
		_, err := s.engine.Transition(booking.ID, EventConfirm, s.ownerActor(), "")
		results <- err
	}()
	go func() {
		_, err := s.engine.Transition(booking.ID, EventCancel, s.tenantActor(), "racing you")
		results <- err
	}()

	var failures []error
	successes := 0
	for i := 0; i < 2; i++ {
		if err := <-results; err == nil {
			successes++
		} else {
			failures = append(failures, err)
		}
	}

	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d (failures: %v)", successes, failures)
	}
	appErr, ok := utils.AsAppError(failures[0])
	if !ok || (appErr.Code != utils.CodeInvalidTransition && appErr.Code != utils.CodeConflict) {
		t.Fatalf("loser should fail InvalidTransition/ConflictError, got %v", failures[0])
	}

	var final models.Booking
	s.db.First(&final, booking.ID)
	if final.Status != models.BookingConfirmed && final.Status != models.BookingCancelled {
		t.Fatalf("unexpected final status %s", final.Status)
	}
}

func TestCancelPaidBookingRefundsSynchronously(t *testing.T) {
	s := newTestStack(t)
	booking := s.createBooking(t)

	attempt, err := s.orch.CreatePayment(s.tenantActor(), booking.ID, "card", "https://app.example/return")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := s.orch.HandleGatewayCallback(attempt.ID, "succeeded"); err != nil {
		t.Fatalf("callback: %v", err)
	}

	cancelled, err := s.engine.Transition(booking.ID, EventCancel, s.tenantActor(), "no longer needed")
	if err != nil {
		t.Fatalf("cancel paid booking: %v", err)
	}
	if cancelled.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", cancelled.PaymentStatus)
	}
	if s.gateway.refundCount() != 1 {
		t.Fatalf("expected 1 gateway refund, got %d", s.gateway.refundCount())
	}
}

func TestCancelPaidBookingGatewayFailureLeavesBookingPaid(t *testing.T) {
	s := newTestStack(t)
	booking := s.createBooking(t)

	attempt, _ := s.orch.CreatePayment(s.tenantActor(), booking.ID, "card", "https://app.example/return")
	s.orch.HandleGatewayCallback(attempt.ID, "succeeded")

	s.gateway.refundErr = utils.NewGatewayError("provider down")

	_, err := s.engine.Transition(booking.ID, EventCancel, s.tenantActor(), "trying anyway")
	appErr, ok := utils.AsAppError(err)
	if !ok || appErr.Code != utils.CodeGatewayError {
		t.Fatalf("expected GatewayError, got %v", err)
	}

	var after models.Booking
	s.db.First(&after, booking.ID)
	if after.Status != models.BookingConfirmed || after.PaymentStatus != models.PaymentPaid {
		t.Fatalf("booking mutated despite failed refund: %s/%s", after.Status, after.PaymentStatus)
	}
}

func TestCompleteDueBookings(t *testing.T) {
	s := newTestStack(t)

	// confirmed stay already past checkout
	past := s.createBooking(t)
	s.db.Model(&models.Booking{}).Where("id = ?", past.ID).Updates(map[string]interface{}{
		"status":    models.BookingConfirmed,
		"check_in":  time.Now().AddDate(0, 0, -10),
		"check_out": time.Now().AddDate(0, 0, -1),
	})

	// confirmed stay still in the future
	future := s.createBooking(t)
	s.db.Model(&models.Booking{}).Where("id = ?", future.ID).Updates(map[string]interface{}{
		"status":    models.BookingConfirmed,
		"check_in":  time.Now().AddDate(0, 0, 5),
		"check_out": time.Now().AddDate(0, 0, 8),
	})

	if n := s.engine.CompleteDueBookings(); n != 1 {
		t.Fatalf("expected 1 completed, got %d", n)
	}

	var pastRow, futureRow models.Booking
	s.db.First(&pastRow, past.ID)
	s.db.First(&futureRow, future.ID)
	if pastRow.Status != models.BookingCompleted {
		t.Fatalf("past booking not completed: %s", pastRow.Status)
	}
	if futureRow.Status != models.BookingConfirmed {
		t.Fatalf("future booking should stay confirmed: %s", futureRow.Status)
	}
}
