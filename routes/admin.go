package routes

import (
	"shepsigrad-server/models"
	"shepsigrad-server/services"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/kataras/iris/v12"
)

// AdminListBookings lists bookings with optional status filters, paginated.
func AdminListBookings(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := ctx.URLParamIntDefault("per_page", 50)
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := storage.DB.Model(&models.Booking{})
	if status := ctx.URLParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if paymentStatus := ctx.URLParam("payment_status"); paymentStatus != "" {
		query = query.Where("payment_status = ?", paymentStatus)
	}

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	res := query.Preload("Property").Preload("Tenant").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&bookings)
	if res.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, utils.CodeInternal, res.Error.Error(), ctx)
		return
	}

	utils.JSONPage(ctx, bookings, page, perPage, total)
}

// AdminGetBooking returns any booking with its payment attempts.
func AdminGetBooking(ctx iris.Context) {
	bookingID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid booking id", ctx)
		return
	}

	var booking models.Booking
	if err := storage.DB.Preload("Property").Preload("Tenant").First(&booking, bookingID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	var attempts []models.PaymentAttempt
	storage.DB.Where("booking_id = ?", bookingID).Order("id ASC").Find(&attempts)

	ctx.JSON(iris.Map{"booking": booking, "paymentAttempts": attempts})
}

type AdminCancelBookingInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminCancelBooking cancels any cancellable booking through the same
// transition entry point users go through, with an audit trail.
func AdminCancelBooking(ctx iris.Context) {
	bookingID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid booking id", ctx)
		return
	}

	var input AdminCancelBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var before models.Booking
	if err := storage.DB.First(&before, bookingID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	claims := utils.ClaimsFromContext(ctx)
	actor := services.Actor{UserID: claims.ID, Role: claims.Role}
	booking, err := engine.Transition(bookingID, services.EventCancel, actor, input.Reason)
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	utils.Audit(ctx, "cancel", "booking", booking.ID,
		iris.Map{"status": before.Status, "paymentStatus": before.PaymentStatus},
		iris.Map{"status": booking.Status, "paymentStatus": booking.PaymentStatus})

	ctx.JSON(booking)
}
