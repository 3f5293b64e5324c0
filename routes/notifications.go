package routes

import (
	"time"

	"shepsigrad-server/models"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/kataras/iris/v12"
)

// GetNotifications returns the caller's notifications in creation order
// (created_at, tie-broken by id) so a polling client replays exactly what
// the live channel would have delivered.
func GetNotifications(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	page := ctx.URLParamIntDefault("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := ctx.URLParamIntDefault("per_page", 50)
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	var total int64
	storage.DB.Model(&models.Notification{}).Where("user_id = ?", claims.ID).Count(&total)

	var notifications []models.Notification
	res := storage.DB.
		Where("user_id = ?", claims.ID).
		Order("created_at ASC, id ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&notifications)
	if res.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, utils.CodeInternal, res.Error.Error(), ctx)
		return
	}

	utils.JSONPage(ctx, notifications, page, perPage, total)
}

// GetUnreadNotificationCount returns the caller's unread badge count.
func GetUnreadNotificationCount(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	var count int64
	storage.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", claims.ID, false).
		Count(&count)

	ctx.JSON(iris.Map{"unread": count})
}

// MarkNotificationRead flips the read flag, the only mutable field on a
// notification.
func MarkNotificationRead(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)

	notificationID, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "invalid notification id", ctx)
		return
	}

	var notification models.Notification
	if err := storage.DB.First(&notification, notificationID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if notification.UserID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": utils.CodeForbidden, "message": "not your notification"})
		return
	}

	if !notification.IsRead {
		now := time.Now()
		res := storage.DB.Model(&notification).
			Updates(map[string]interface{}{"is_read": true, "read_at": &now})
		if res.Error != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
	}

	ctx.JSON(notification)
}
