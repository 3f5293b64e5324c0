package routes

import (
	"shepsigrad-server/models"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/kataras/iris/v12"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterUserInput struct {
	FirstName string `json:"firstName" validate:"required,max=128"`
	LastName  string `json:"lastName" validate:"required,max=128"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=256"`
	Role      string `json:"role" validate:"omitempty,oneof=tenant landlord"`
}

// Register creates a user and returns a token pair. Roles are restricted to
// tenant and landlord; admins are provisioned out of band.
func Register(ctx iris.Context) {
	var input RegisterUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var existing models.User
	err := storage.DB.Where("email = ?", input.Email).First(&existing).Error
	if err == nil {
		utils.CreateError(iris.StatusConflict, utils.CodeConflict, "email already registered", ctx)
		return
	}
	if err != gorm.ErrRecordNotFound {
		utils.CreateInternalServerError(ctx)
		return
	}

	hashed, hashErr := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	role := input.Role
	if role == "" {
		role = "tenant"
	}

	user := models.User{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Password:  string(hashed),
		Role:      role,
	}
	if err := storage.DB.Create(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	tokenPair, tokenErr := utils.CreateTokenPair(user.ID)
	if tokenErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"user":         user,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies credentials and returns a token pair.
func Login(ctx iris.Context) {
	var input LoginUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.Where("email = ?", input.Email).First(&user).Error; err != nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "invalid credentials", ctx)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "invalid credentials", ctx)
		return
	}

	tokenPair, tokenErr := utils.CreateTokenPair(user.ID)
	if tokenErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"user":         user,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}
