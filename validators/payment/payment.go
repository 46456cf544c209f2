package paymentValidator

import (
	"dfp/middleware"

	"github.com/gofiber/fiber/v2"
)

// CreateIntent validates a payment intent creation request
func CreateIntent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			Amount     float64           `json:"amount"`
			Currency   string            `json:"currency"`
			ProposalID uint              `json:"proposalId"`
			Metadata   map[string]string `json:"metadata"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		// Payment endpoints answer validation problems with a plain 400,
		// per the documented client contract.
		if reqData.Amount <= 0 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Amount must be greater than 0!", nil)
		}
		if reqData.ProposalID == 0 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Proposal ID is required!", nil)
		}
		if reqData.Currency == "" {
			reqData.Currency = "USD"
		}

		c.Locals("validatedIntent", reqData)
		return c.Next()
	}
}

// Confirm validates a client-side payment confirmation request
func Confirm() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			PaymentIntentID string `json:"paymentIntentId"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if reqData.PaymentIntentID == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Payment intent ID is required!", nil)
		}

		c.Locals("validatedConfirm", reqData)
		return c.Next()
	}
}
