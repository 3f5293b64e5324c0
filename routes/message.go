package routes

import (
	"fmt"

	"shepsigrad-server/models"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/kataras/iris/v12"
)

type SendMessageInput struct {
	ReceiverID uint   `json:"receiverID" validate:"required"`
	Text       string `json:"text" validate:"required,max=2000"`
	BookingID  *uint  `json:"bookingID"`
}

// SendMessage stores a direct message and notifies the receiver through the
// same fan-out path booking events use: durable row first, live push after.
func SendMessage(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	var input SendMessageInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if input.ReceiverID == claims.ID {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "cannot message yourself", ctx)
		return
	}

	var receiver models.User
	if err := storage.DB.First(&receiver, input.ReceiverID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	message := models.Message{
		SenderID:   claims.ID,
		ReceiverID: input.ReceiverID,
		Text:       input.Text,
		BookingID:  input.BookingID,
	}
	if err := storage.DB.Create(&message).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	senderName := "Someone"
	var sender models.User
	if err := storage.DB.First(&sender, claims.ID).Error; err == nil {
		senderName = fmt.Sprintf("%s %s", sender.FirstName, sender.LastName)
	}

	fanout.EmitMessage(&message, senderName)

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(message)
}

// GetConversation lists the messages between the caller and another user,
// oldest first.
func GetConversation(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	otherID, err := ctx.Params().GetUint("userID")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid user id", ctx)
		return
	}

	var messages []models.Message
	res := storage.DB.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			claims.ID, otherID, otherID, claims.ID).
		Order("created_at ASC, id ASC").
		Limit(200).
		Find(&messages)
	if res.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, utils.CodeInternal, res.Error.Error(), ctx)
		return
	}

	ctx.JSON(messages)
}
