package main

import (
	"log"
	"os"
	"time"

	"shepsigrad-server/routes"
	"shepsigrad-server/services"
	"shepsigrad-server/storage"
	"shepsigrad-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	// Initialize services
	db := storage.InitializeDB()
	storage.InitializeRedis()

	hub := services.NewHub(db)
	fanout := services.NewFanout(db, hub)
	gateway := services.NewHTTPPaymentGateway()
	engine := services.NewLifecycleEngine(db, fanout, gateway)
	payments := services.NewPaymentOrchestrator(db, engine, fanout, gateway)
	routes.Configure(engine, payments, fanout, hub)

	go hub.Heartbeat(30 * time.Second)

	// Scheduled completion of stays past checkout
	go func() {
		ticker := time.NewTicker(time.Hour)
		for range ticker.C {
			if n := engine.CompleteDueBookings(); n > 0 {
				log.Printf("scheduler: completed %d due bookings", n)
			}
		}
	}()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)

	// JWT verifiers
	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		if err := ctx.ReadJSON(&tokenInput); err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
		user.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)
	}

	property := app.Party("/api/property", accessTokenVerifierMiddleware)
	{
		property.Post("/", routes.CreateProperty)
		property.Get("/mine", routes.GetMyProperties)
		property.Get("/{id:uint}", routes.GetProperty)
		property.Patch("/{id:uint}", routes.UpdateProperty)
	}

	booking := app.Party("/api/booking", accessTokenVerifierMiddleware)
	{
		booking.Post("/property/{id:uint}", routes.CreateBooking)
		booking.Get("/mine", routes.GetTenantBookings)
		booking.Get("/host", routes.GetHostBookings)
		booking.Get("/{id:uint}", routes.GetBooking)
		booking.Post("/{id:uint}/confirm", routes.ConfirmBooking)
		booking.Post("/{id:uint}/reject", routes.RejectBooking)
		booking.Post("/{id:uint}/cancel", routes.CancelBooking)
	}

	payment := app.Party("/api/payment")
	{
		payment.Post("/", accessTokenVerifierMiddleware, routes.CreatePayment)
		payment.Post("/callback/{id:uint}", routes.GatewayCallback)
		payment.Post("/{id:uint}/redirect", accessTokenVerifierMiddleware, routes.ConfirmRedirect)
	}

	notification := app.Party("/api/notifications", accessTokenVerifierMiddleware)
	{
		notification.Get("/", routes.GetNotifications)
		notification.Get("/unread", routes.GetUnreadNotificationCount)
		notification.Put("/{id:uint}/read", routes.MarkNotificationRead)
	}

	message := app.Party("/api/message", accessTokenVerifierMiddleware)
	{
		message.Post("/", routes.SendMessage)
		message.Get("/{userID:uint}", routes.GetConversation)
	}

	realtime := app.Party("/api/realtime", accessTokenVerifierMiddleware)
	{
		realtime.Get("/ws", routes.ConnectRealtime)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/bookings", routes.AdminListBookings)
		admin.Get("/bookings/{id:uint}", routes.AdminGetBooking)
		admin.Post("/bookings/{id:uint}/cancel", routes.AdminCancelBooking)
		admin.Post("/bookings/complete-due", routes.CompleteDueBookings)
		admin.Post("/bookings/{id:uint}/refund", routes.RefundBooking)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}

	log.Printf("listening on :%s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
