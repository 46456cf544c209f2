package paymentController

import (
	"encoding/json"
	"errors"
	"log"

	"dfp/config"
	"dfp/database"
	"dfp/gateway"
	"dfp/middleware"
	"dfp/models"
	"dfp/settlement"
	"dfp/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
)

// CreateIntent authorizes a payment with the provider and records the
// pending investment. The client completes the payment against the
// returned client secret.
func CreateIntent(c *fiber.Ctx) error {
	userId := c.Locals("userId").(uint)

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = false", userId).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Access Denied!", nil)
	}

	reqData, ok := c.Locals("validatedIntent").(*struct {
		Amount     float64           `json:"amount"`
		Currency   string            `json:"currency"`
		ProposalID uint              `json:"proposalId"`
		Metadata   map[string]string `json:"metadata"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	intent, investment, err := settlement.Default.CreateIntent(userId, reqData.ProposalID, reqData.Amount, reqData.Currency, reqData.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidAmount):
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Amount must be greater than 0!", nil)
		case errors.Is(err, settlement.ErrProposalNotOpen):
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Proposal is not open for investment!", nil)
		case errors.Is(err, gateway.ErrProviderUnavailable):
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Payment provider unavailable. Please try again.", nil)
		}
		log.Printf("[PAYMENT] Intent creation failed: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create payment intent!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payment intent created!", fiber.Map{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
		"reference":       investment.Reference,
	})
}

// ConfirmPayment is the client-triggered settlement path. The claimed
// success is re-verified against the provider before anything is written.
func ConfirmPayment(c *fiber.Ctx) error {
	userId := c.Locals("userId").(uint)

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = false", userId).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Access Denied!", nil)
	}

	reqData, ok := c.Locals("validatedConfirm").(*struct {
		PaymentIntentID string `json:"paymentIntentId"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	result, err := settlement.Default.Settle(reqData.PaymentIntentID)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrNotSucceeded):
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, err.Error(), nil)
		case errors.Is(err, settlement.ErrUnknownIntent):
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "No investment found for this payment!", nil)
		case errors.Is(err, gateway.ErrProviderUnavailable):
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Payment provider unavailable. Please try again.", nil)
		}
		log.Printf("[PAYMENT] Settlement failed for %s: %v", reqData.PaymentIntentID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to confirm payment!", nil)
	}

	if !result.AlreadyApplied {
		go utils.SendInvestmentReceipt(result.Transaction)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payment confirmed!", fiber.Map{
		"transactionId":   result.Transaction.ID,
		"paymentIntentId": result.Transaction.StripePaymentIntentID,
		"amount":          result.Transaction.Amount,
		"status":          result.Transaction.Status,
	})
}

// StripeWebhook is the provider-triggered settlement path. The signature is
// verified before the body is touched; processed and ignored events both
// acknowledge with 200 so the provider stops redelivering.
func StripeWebhook(c *fiber.Ctx) error {
	event, err := gateway.VerifyWebhook(c.Body(), c.Get("Stripe-Signature"), config.AppConfig.StripeWebhookSecret)
	if err != nil {
		log.Printf("[WEBHOOK] Signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed event payload"})
		}
		result, err := settlement.Default.Settle(pi.ID)
		if err != nil {
			log.Printf("[WEBHOOK] Settlement failed for %s: %v", pi.ID, err)
			// 500 invites the provider to redeliver; the idempotency key
			// makes the retry safe.
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settlement failed"})
		}
		if !result.AlreadyApplied {
			go utils.SendInvestmentReceipt(result.Transaction)
		}

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed event payload"})
		}
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		if err := settlement.Default.MarkFailed(pi.ID, reason); err != nil && !errors.Is(err, settlement.ErrUnknownIntent) {
			log.Printf("[WEBHOOK] Failed to record failure for %s: %v", pi.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record failure"})
		}

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed event payload"})
		}
		if charge.PaymentIntent != nil {
			if err := settlement.Default.Refund(charge.PaymentIntent.ID); err != nil && !errors.Is(err, settlement.ErrUnknownIntent) {
				log.Printf("[WEBHOOK] Failed to apply refund for %s: %v", charge.PaymentIntent.ID, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to apply refund"})
			}
			go utils.SendRefundNotice(charge.PaymentIntent.ID)
		}

	default:
		// Unhandled event types are acknowledged and dropped.
	}

	return c.JSON(fiber.Map{"received": true})
}
