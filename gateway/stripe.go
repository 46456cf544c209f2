package gateway

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway implements Gateway on top of the Stripe API.
type StripeGateway struct {
	sc *client.API
}

// NewStripeGateway builds a Stripe client with a bounded request timeout
// and a single network retry for transient failures.
func NewStripeGateway(secretKey string) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripe.Int64(1),
	})

	sc := client.New(secretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeGateway{sc: sc}
}

// CreateIntent creates a Stripe payment intent. The correlation metadata
// (proposal_id, investor_id, ...) rides along and is echoed back on every
// provider event for this intent.
func (g *StripeGateway) CreateIntent(amount float64, currency string, metadata map[string]string) (*Intent, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		log.Printf("[GATEWAY] Failed to create payment intent: %v", err)
		return nil, translateStripeErr(err)
	}

	return fromStripeIntent(pi), nil
}

// RetrieveIntent fetches the current provider-side state of an intent.
func (g *StripeGateway) RetrieveIntent(id string) (*Intent, error) {
	pi, err := g.sc.PaymentIntents.Get(id, nil)
	if err != nil {
		log.Printf("[GATEWAY] Failed to retrieve payment intent %s: %v", id, err)
		return nil, translateStripeErr(err)
	}
	return fromStripeIntent(pi), nil
}

// VerifyWebhook checks the Stripe-Signature header against the shared
// webhook secret. Verification is the SDK's constant-time HMAC check; on
// failure the payload must be discarded unprocessed. The SDK's pinned API
// version is not enforced: an event that passed the signature check must
// not be dropped because the Stripe account runs a different version.
func VerifyWebhook(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		Amount:       fromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureReason = pi.LastPaymentError.Msg
	}
	return intent
}

// translateStripeErr maps SDK errors onto the gateway taxonomy. Card
// declines keep the provider's structured reason so the user sees why; the
// rest collapses to a retryable provider error.
func translateStripeErr(err error) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return fmt.Errorf("payment rejected by provider: %s", stripeErr.Msg)
		}
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
