package routes

import (
	"shepsigrad-server/models"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/kataras/iris/v12"
)

type CreatePropertyInput struct {
	Title        string  `json:"title" validate:"required,max=256"`
	City         string  `json:"city" validate:"max=128"`
	Country      string  `json:"country" validate:"max=128"`
	NightlyPrice float64 `json:"nightlyPrice" validate:"required,gt=0"`
	CleaningFee  float64 `json:"cleaningFee" validate:"gte=0"`
	ServiceFee   float64 `json:"serviceFee" validate:"gte=0"`
	Currency     string  `json:"currency" validate:"omitempty,len=3"`
	MaxGuests    int     `json:"maxGuests" validate:"required,gte=1"`
	MinNights    int     `json:"minNights" validate:"omitempty,gte=1"`
	MaxNights    int     `json:"maxNights" validate:"omitempty,gte=0"`
}

// CreateProperty registers a listing for the authenticated landlord. The
// owner id always comes from the token, never the body.
func CreateProperty(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)
	if claims.Role != "landlord" && claims.Role != "admin" {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": utils.CodeForbidden, "message": "landlord access required"})
		return
	}

	var input CreatePropertyInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	minNights := input.MinNights
	if minNights == 0 {
		minNights = 1
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	property := models.Property{
		OwnerID:      claims.ID,
		Title:        input.Title,
		City:         input.City,
		Country:      input.Country,
		NightlyPrice: input.NightlyPrice,
		CleaningFee:  input.CleaningFee,
		ServiceFee:   input.ServiceFee,
		Currency:     currency,
		MaxGuests:    input.MaxGuests,
		MinNights:    minNights,
		MaxNights:    input.MaxNights,
		IsActive:     true,
	}

	if err := storage.DB.Create(&property).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(property)
}

// GetProperty returns the listing summary the booking flow consumes.
func GetProperty(ctx iris.Context) {
	propertyID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid property id", ctx)
		return
	}

	var property models.Property
	if err := storage.DB.First(&property, propertyID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(property)
}

// GetMyProperties lists the landlord's own listings.
func GetMyProperties(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	var properties []models.Property
	res := storage.DB.Where("owner_id = ?", claims.ID).Order("created_at DESC").Find(&properties)
	if res.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, utils.CodeInternal, res.Error.Error(), ctx)
		return
	}

	ctx.JSON(properties)
}

type UpdatePropertyInput struct {
	Title        *string  `json:"title" validate:"omitempty,max=256"`
	NightlyPrice *float64 `json:"nightlyPrice" validate:"omitempty,gt=0"`
	CleaningFee  *float64 `json:"cleaningFee" validate:"omitempty,gte=0"`
	ServiceFee   *float64 `json:"serviceFee" validate:"omitempty,gte=0"`
	MaxGuests    *int     `json:"maxGuests" validate:"omitempty,gte=1"`
	MinNights    *int     `json:"minNights" validate:"omitempty,gte=1"`
	MaxNights    *int     `json:"maxNights" validate:"omitempty,gte=0"`
	IsActive     *bool    `json:"isActive"`
}

// UpdateProperty applies a landlord-side change and relays it to tenant
// clients over the sync channel. Existing bookings keep their agreed price;
// only new bookings see the new one.
func UpdateProperty(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	propertyID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid property id", ctx)
		return
	}

	var property models.Property
	if err := storage.DB.First(&property, propertyID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if claims.Role != "admin" && property.OwnerID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": utils.CodeForbidden, "message": "not your property"})
		return
	}

	var input UpdatePropertyInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.NightlyPrice != nil {
		updates["nightly_price"] = *input.NightlyPrice
	}
	if input.CleaningFee != nil {
		updates["cleaning_fee"] = *input.CleaningFee
	}
	if input.ServiceFee != nil {
		updates["service_fee"] = *input.ServiceFee
	}
	if input.MaxGuests != nil {
		updates["max_guests"] = *input.MaxGuests
	}
	if input.MinNights != nil {
		updates["min_nights"] = *input.MinNights
	}
	if input.MaxNights != nil {
		updates["max_nights"] = *input.MaxNights
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := storage.DB.Model(&property).Updates(updates).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		if err := storage.DB.First(&property, propertyID).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		fanout.EmitPropertyUpdated(&property)
	}

	ctx.JSON(property)
}
