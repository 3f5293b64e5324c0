package routes

import (
	"time"

	"shepsigrad-server/models"
	"shepsigrad-server/services"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/kataras/iris/v12"
)

type CreateBookingInput struct {
	CheckIn     time.Time `json:"checkIn" validate:"required"`
	CheckOut    time.Time `json:"checkOut" validate:"required"`
	GuestsCount int       `json:"guestsCount" validate:"required,gte=1"`
}

// CreateBooking opens a pending booking for the authenticated tenant.
// Price fields in the request body are ignored; the engine recomputes them.
func CreateBooking(ctx iris.Context) {
	propertyID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid property id", ctx)
		return
	}

	claims := utils.ClaimsFromContext(ctx)
	if claims == nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "missing token", ctx)
		return
	}

	var input CreateBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	booking, err := engine.CreateBooking(services.CreateBookingInput{
		PropertyID:  propertyID,
		TenantID:    claims.ID,
		CheckIn:     input.CheckIn,
		CheckOut:    input.CheckOut,
		GuestsCount: input.GuestsCount,
	})
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(booking)
}

// GetBooking returns one booking to its tenant, its owner or an admin.
func GetBooking(ctx iris.Context) {
	bookingID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid booking id", ctx)
		return
	}
	claims := utils.ClaimsFromContext(ctx)

	var booking models.Booking
	if err := storage.DB.Preload("Property").Preload("Tenant").First(&booking, bookingID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if claims.Role != "admin" && claims.ID != booking.TenantID && claims.ID != booking.OwnerID {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": utils.CodeForbidden, "message": "not your booking"})
		return
	}

	ctx.JSON(booking)
}

// GetTenantBookings lists the authenticated user's bookings as a tenant.
func GetTenantBookings(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	var bookings []models.Booking
	res := storage.DB.Preload("Property").
		Where("tenant_id = ?", claims.ID).
		Order("created_at DESC").
		Find(&bookings)
	if res.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, utils.CodeInternal, res.Error.Error(), ctx)
		return
	}

	ctx.JSON(bookings)
}

// GetHostBookings lists bookings across all properties owned by the
// authenticated landlord.
func GetHostBookings(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	var bookings []models.Booking
	res := storage.DB.Preload("Property").Preload("Tenant").
		Where("owner_id = ?", claims.ID).
		Order("created_at DESC").
		Find(&bookings)
	if res.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, utils.CodeInternal, res.Error.Error(), ctx)
		return
	}

	ctx.JSON(bookings)
}

// ConfirmBooking is the owner/admin accepting a pending booking.
func ConfirmBooking(ctx iris.Context) {
	transitionHandler(ctx, services.EventConfirm, "")
}

// RejectBooking is the owner/admin declining a pending booking.
func RejectBooking(ctx iris.Context) {
	transitionHandler(ctx, services.EventReject, "")
}

type CancelBookingInput struct {
	Reason string `json:"reason"`
}

// CancelBooking cancels a pending or confirmed booking. A paid booking is
// refunded synchronously; a gateway failure fails the cancel.
func CancelBooking(ctx iris.Context) {
	var input CancelBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	transitionHandler(ctx, services.EventCancel, input.Reason)
}

func transitionHandler(ctx iris.Context, event services.BookingEvent, reason string) {
	bookingID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid booking id", ctx)
		return
	}
	claims := utils.ClaimsFromContext(ctx)
	if claims == nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "missing token", ctx)
		return
	}

	actor := services.Actor{UserID: claims.ID, Role: claims.Role}
	booking, err := engine.Transition(bookingID, event, actor, reason)
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	ctx.JSON(booking)
}

// CompleteDueBookings moves confirmed bookings past their checkout date to
// completed. Called by the scheduler; also exposed for admins.
func CompleteDueBookings(ctx iris.Context) {
	completed := engine.CompleteDueBookings()
	ctx.JSON(iris.Map{"completed": completed})
}
