package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	ctx.JSON(iris.Map{
		"data":  data,
		"meta":  PageMeta{Page: page, PerPage: perPage, Total: total},
		"links": iris.Map{},
	})
}

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}

func CreateError(status int, code string, message string, ctx iris.Context) {
	JSONError(ctx, status, code, message)
}

func CreateNotFound(ctx iris.Context) {
	JSONError(ctx, iris.StatusNotFound, CodeNotFound, "resource not found")
}

func CreateInternalServerError(ctx iris.Context) {
	JSONError(ctx, iris.StatusInternalServerError, CodeInternal, "internal server error")
}

// WriteAppError maps a service error onto the stable error taxonomy. Unknown
// errors become a 500 without leaking infrastructure details.
func WriteAppError(ctx iris.Context, err error) {
	if appErr, ok := AsAppError(err); ok {
		JSONError(ctx, appErr.Status, appErr.Code, appErr.Message)
		return
	}
	CreateInternalServerError(ctx)
}

// HandleValidationErrors turns ReadJSON/validator failures into a
// ValidationError response with per-field details.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]iris.Map, 0, len(errs))
		for _, fieldErr := range errs {
			fields = append(fields, iris.Map{
				"field": strings.ToLower(fieldErr.Field()[:1]) + fieldErr.Field()[1:],
				"tag":   fieldErr.Tag(),
				"param": fieldErr.Param(),
			})
		}
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"error": CodeValidation, "message": "invalid input", "fields": fields})
		return
	}

	JSONError(ctx, iris.StatusBadRequest, CodeValidation, err.Error())
}
