package routes

import (
	"fmt"
	"os"

	"shepsigrad-server/models"
	"shepsigrad-server/services"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/golang-jwt/jwt/v4"
	"github.com/kataras/iris/v12"
)

type CreatePaymentInput struct {
	BookingID uint   `json:"bookingId" validate:"required"`
	Method    string `json:"method" validate:"required,oneof=card mobile_money bank_transfer"`
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

// CreatePayment opens a checkout session for a booking and returns the
// gateway confirmation URL the client redirects to.
func CreatePayment(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)
	if claims == nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "missing token", ctx)
		return
	}

	var input CreatePaymentInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	actor := services.Actor{UserID: claims.ID, Role: claims.Role}
	attempt, err := payments.CreatePayment(actor, input.BookingID, input.Method, input.ReturnURL)
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"paymentAttemptId": attempt.ID,
		"confirmationUrl":  attempt.ConfirmationURL,
	})
}

type GatewayCallbackInput struct {
	Outcome string `json:"outcome" validate:"required,oneof=succeeded failed"`
}

// GatewayCallback is the webhook the gateway delivers outcomes to. It is
// unauthenticated HTTP-wise but requires the gateway's HS256 signature
// token; redeliveries are absorbed idempotently by the orchestrator.
func GatewayCallback(ctx iris.Context) {
	attemptID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid attempt id", ctx)
		return
	}

	var input GatewayCallbackInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	signature := ctx.GetHeader("X-Gateway-Signature")
	if err := verifyGatewaySignature(signature, attemptID, input.Outcome); err != nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "invalid gateway signature", ctx)
		return
	}

	attempt, err := payments.HandleGatewayCallback(attemptID, input.Outcome)
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	ctx.JSON(attempt)
}

// ConfirmRedirect is the client-side fallback for the same outcome: the
// tenant's app parses the gateway redirect and reports it. Same idempotent
// entry point, authorized by booking ownership instead of a signature.
func ConfirmRedirect(ctx iris.Context) {
	attemptID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid attempt id", ctx)
		return
	}

	claims := utils.ClaimsFromContext(ctx)

	var input GatewayCallbackInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var attempt models.PaymentAttempt
	if err := storage.DB.Preload("Booking").First(&attempt, attemptID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if attempt.Booking == nil || (claims.Role != "admin" && attempt.Booking.TenantID != claims.ID) {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": utils.CodeForbidden, "message": "not your payment"})
		return
	}

	applied, err := payments.HandleGatewayCallback(attemptID, input.Outcome)
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	ctx.JSON(applied)
}

// RefundBooking refunds a paid booking. Admin only; a gateway failure is
// surfaced so the refund can be retried, never silently dropped.
func RefundBooking(ctx iris.Context) {
	bookingID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid booking id", ctx)
		return
	}

	booking, err := payments.Refund(bookingID)
	if err != nil {
		utils.WriteAppError(ctx, err)
		return
	}

	utils.Audit(ctx, "refund", "booking", booking.ID, nil, iris.Map{"paymentStatus": booking.PaymentStatus})
	ctx.JSON(booking)
}

// verifyGatewaySignature checks the HS256 token the gateway signs each
// delivery with. Claims must bind the token to this attempt and outcome so
// a replay cannot settle a different payment.
func verifyGatewaySignature(signature string, attemptID uint, outcome string) error {
	if signature == "" {
		return fmt.Errorf("missing signature")
	}

	token, err := jwt.Parse(signature, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(os.Getenv("PAYMENT_GATEWAY_WEBHOOK_SECRET")), nil
	})
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid claims")
	}
	if id, ok := claims["attemptId"].(float64); !ok || uint(id) != attemptID {
		return fmt.Errorf("signature is for a different attempt")
	}
	if out, ok := claims["outcome"].(string); !ok || out != outcome {
		return fmt.Errorf("signature is for a different outcome")
	}
	return nil
}
