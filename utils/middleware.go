package utils

import (
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// UserIDFromTokenMiddleware extracts user ID from the JWT and stores it in
// context for routes without an {id} URL parameter.
func UserIDFromTokenMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	ctx.Values().Set("userID", claims.ID)
	ctx.Next()
}

// AdminOnlyMiddleware ensures the requester has the admin role.
func AdminOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	if claims.Role != "admin" {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": CodeForbidden, "message": "admin access required"})
		return
	}
	ctx.Values().Set("userID", claims.ID)
	ctx.Next()
}

// ClaimsFromContext returns the verified access token claims.
func ClaimsFromContext(ctx iris.Context) *AccessToken {
	tok := jwt.Get(ctx)
	if tok == nil {
		return nil
	}
	claims, ok := tok.(*AccessToken)
	if !ok {
		return nil
	}
	return claims
}
