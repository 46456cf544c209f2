package gateway

import "errors"

var (
	// ErrInvalidAmount rejects non-positive intent amounts before the
	// provider is contacted.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrProviderUnavailable marks transient provider/network failures.
	// Callers may retry the whole operation.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidSignature marks a webhook whose signature did not verify.
	// The body must not be processed.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// IntentStatus mirrors the provider-side status of a payment intent.
type IntentStatus string

const (
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID            string
	ClientSecret  string
	Status        IntentStatus
	Amount        float64 // major currency units
	Currency      string
	Metadata      map[string]string
	FailureReason string
}

// Succeeded reports whether the provider settled the payment.
func (i *Intent) Succeeded() bool {
	return i.Status == IntentStatusSucceeded
}

// Gateway is the payment-provider contract the settlement coordinator
// depends on. The Stripe implementation is the production binding; tests
// substitute a fake.
type Gateway interface {
	// CreateIntent authorizes a new payment intent carrying the given
	// correlation metadata. Fails with ErrInvalidAmount or
	// ErrProviderUnavailable.
	CreateIntent(amount float64, currency string, metadata map[string]string) (*Intent, error)

	// RetrieveIntent fetches the provider-side truth for an intent.
	// The settlement path calls this before trusting any caller claim.
	RetrieveIntent(id string) (*Intent, error)
}
