package paymentRoutes

import (
	paymentController "dfp/controllers/payment"
	"dfp/middleware"
	paymentValidator "dfp/validators/payment"

	"github.com/gofiber/fiber/v2"
)

func SetupPaymentRoutes(app *fiber.App) {
	paymentGroup := app.Group("/payment")

	paymentGroup.Post("/intent", paymentValidator.CreateIntent(), middleware.JWTMiddleware, paymentController.CreateIntent)
	paymentGroup.Post("/confirm", paymentValidator.Confirm(), middleware.JWTMiddleware, paymentController.ConfirmPayment)

	// Provider-triggered; authenticated by webhook signature, not JWT
	paymentGroup.Post("/webhook", paymentController.StripeWebhook)
}
