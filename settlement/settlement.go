// Package settlement moves a payment from provider confirmation to the
// ledger exactly once. Two independent triggers (the client confirmation
// endpoint and the provider webhook) may race for the same payment intent,
// possibly from different processes; the unique index on
// transactions.stripe_payment_intent_id is the arbiter, not any in-process
// lock.
package settlement

import (
	"errors"
	"fmt"
	"log"
	"time"

	"dfp/gateway"
	"dfp/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotSucceeded means the provider reports the payment as not (yet)
	// settled. Callers must not retry automatically on a definitive status.
	ErrNotSucceeded = errors.New("payment has not succeeded with the provider")

	// ErrUnknownIntent means no investment was recorded for the intent id.
	ErrUnknownIntent = errors.New("no investment recorded for this payment intent")

	// ErrProposalNotOpen rejects intent creation against a proposal that is
	// not accepting investments.
	ErrProposalNotOpen = errors.New("proposal is not open for investment")
)

// Coordinator enforces exactly-once application of payment confirmations
// to the transaction ledger and the proposal aggregate caches.
type Coordinator struct {
	db *gorm.DB
	gw gateway.Gateway
}

// Default is the process-wide coordinator wired in main.
var Default *Coordinator

// Init sets up the default coordinator.
func Init(db *gorm.DB, gw gateway.Gateway) {
	Default = NewCoordinator(db, gw)
}

func NewCoordinator(db *gorm.DB, gw gateway.Gateway) *Coordinator {
	return &Coordinator{db: db, gw: gw}
}

// Result reports the outcome of a settlement attempt.
type Result struct {
	Transaction models.Transaction
	// AlreadyApplied is true when a concurrent or earlier trigger won the
	// race and the ledger was left untouched by this call.
	AlreadyApplied bool
}

// CreateIntent authorizes a payment with the provider and records the
// PENDING investment row. The proposal and investor ids are passed to the
// provider as correlation metadata and validated here, at creation time,
// rather than trusted from echoed metadata later.
func (s *Coordinator) CreateIntent(investorID, proposalID uint, amount float64, currency string, extra map[string]string) (*gateway.Intent, *models.Investment, error) {
	var proposal models.Proposal
	if err := s.db.
		Where("id = ? AND is_deleted = false", proposalID).
		First(&proposal).Error; err != nil {
		return nil, nil, ErrProposalNotOpen
	}
	if proposal.Status != models.ProposalStatusActive {
		return nil, nil, ErrProposalNotOpen
	}

	metadata := map[string]string{
		"proposal_id": fmt.Sprint(proposalID),
		"investor_id": fmt.Sprint(investorID),
	}
	for k, v := range extra {
		metadata[k] = v
	}

	intent, err := s.gw.CreateIntent(amount, currency, metadata)
	if err != nil {
		return nil, nil, err
	}

	investment := models.Investment{
		Reference:             uuid.NewString(),
		InvestorID:            investorID,
		ProposalID:            proposalID,
		Amount:                amount,
		Currency:              currency,
		Status:                models.InvestmentStatusPending,
		StripePaymentIntentID: intent.ID,
	}
	if err := s.db.Create(&investment).Error; err != nil {
		log.Printf("[SETTLEMENT] Failed to record pending investment for %s: %v", intent.ID, err)
		return nil, nil, fmt.Errorf("failed to record investment: %w", err)
	}

	return intent, &investment, nil
}

// Settle is the single entry point for both confirmation triggers. It
// re-derives the true payment status from the provider, never trusting the
// caller, then applies the ledger update exactly once.
func (s *Coordinator) Settle(paymentIntentID string) (*Result, error) {
	// Fast path: a succeeded transaction already exists, so some earlier
	// trigger applied the ledger. Report the existing result.
	var existing models.Transaction
	if err := s.db.
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&existing).Error; err == nil && existing.Status == models.TransactionStatusSucceeded {
		return &Result{Transaction: existing, AlreadyApplied: true}, nil
	}

	intent, err := s.gw.RetrieveIntent(paymentIntentID)
	if err != nil {
		return nil, err
	}

	if intent.Succeeded() {
		return s.apply(intent)
	}

	// Canceled intents never settle; record the failure. Anything else
	// (processing, requires_action, ...) is left pending for a later
	// trigger or the reconciler.
	if intent.Status == gateway.IntentStatusCanceled {
		if err := s.MarkFailed(paymentIntentID, intent.FailureReason); err != nil {
			log.Printf("[SETTLEMENT] Failed to mark %s failed: %v", paymentIntentID, err)
		}
	}

	if intent.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrNotSucceeded, intent.FailureReason)
	}
	return nil, fmt.Errorf("%w (status %s)", ErrNotSucceeded, intent.Status)
}

// apply writes the succeeded transaction, completes the investment and
// refreshes the proposal caches in one atomic unit. A duplicate-key
// conflict on the intent id means the other trigger won; that is reported
// as a no-op success, not an error.
func (s *Coordinator) apply(intent *gateway.Intent) (*Result, error) {
	var investment models.Investment
	if err := s.db.
		Where("stripe_payment_intent_id = ? AND is_deleted = false", intent.ID).
		First(&investment).Error; err != nil {
		return nil, ErrUnknownIntent
	}

	txn := models.Transaction{
		StripePaymentIntentID: intent.ID,
		InvestorID:            investment.InvestorID,
		ProposalID:            investment.ProposalID,
		Amount:                intent.Amount,
		Currency:              intent.Currency,
		Status:                models.TransactionStatusSucceeded,
		Metadata:              metadataBag(intent.Metadata),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		if investment.Status != models.InvestmentStatusCompleted {
			if !investment.Status.CanTransition(models.InvestmentStatusCompleted) {
				return fmt.Errorf("illegal investment transition %s -> %s", investment.Status, models.InvestmentStatusCompleted)
			}
			now := time.Now()
			investment.Status = models.InvestmentStatusCompleted
			investment.CompletedAt = &now
			if err := tx.Save(&investment).Error; err != nil {
				return err
			}
		}

		return RefreshProposalAggregates(tx, investment.ProposalID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.lostRace(intent.ID)
		}
		return nil, fmt.Errorf("ledger application failed: %w", err)
	}

	return &Result{Transaction: txn}, nil
}

// lostRace resolves a duplicate-key conflict: the competing trigger
// inserted the transaction row first and carried out the full update.
func (s *Coordinator) lostRace(paymentIntentID string) (*Result, error) {
	var winner models.Transaction
	if err := s.db.
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&winner).Error; err != nil {
		return nil, fmt.Errorf("ledger application failed: %w", err)
	}
	if winner.Status != models.TransactionStatusSucceeded {
		return nil, fmt.Errorf("transaction for %s already recorded as %s", paymentIntentID, winner.Status)
	}
	return &Result{Transaction: winner, AlreadyApplied: true}, nil
}

// MarkFailed records a provider-reported payment failure. Aggregates are
// never touched on this path.
func (s *Coordinator) MarkFailed(paymentIntentID, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		err := tx.Where("stripe_payment_intent_id = ?", paymentIntentID).First(&txn).Error
		switch {
		case err == nil:
			if txn.Status == models.TransactionStatusFailed {
				return nil
			}
			if !txn.Status.CanTransition(models.TransactionStatusFailed) {
				// A failure event after settlement carries no weight.
				log.Printf("[SETTLEMENT] Ignoring failure event for %s transaction %s", txn.Status, paymentIntentID)
				return nil
			}
			txn.Status = models.TransactionStatusFailed
			txn.FailureReason = reason
			if err := tx.Save(&txn).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			var investment models.Investment
			if err := tx.
				Where("stripe_payment_intent_id = ? AND is_deleted = false", paymentIntentID).
				First(&investment).Error; err != nil {
				return ErrUnknownIntent
			}
			record := models.Transaction{
				StripePaymentIntentID: paymentIntentID,
				InvestorID:            investment.InvestorID,
				ProposalID:            investment.ProposalID,
				Amount:                investment.Amount,
				Currency:              investment.Currency,
				Status:                models.TransactionStatusFailed,
				FailureReason:         reason,
			}
			if err := tx.Create(&record).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return nil
				}
				return err
			}
		default:
			return err
		}

		var investment models.Investment
		if err := tx.
			Where("stripe_payment_intent_id = ? AND is_deleted = false", paymentIntentID).
			First(&investment).Error; err != nil {
			return nil
		}
		if investment.Status.CanTransition(models.InvestmentStatusFailed) {
			investment.Status = models.InvestmentStatusFailed
			return tx.Save(&investment).Error
		}
		return nil
	})
}

// Refund applies a compensating refund event: a settled transaction moves
// to refunded, the investment follows, and the proposal caches are
// re-derived from the ledger in the same unit.
func (s *Coordinator) Refund(paymentIntentID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Where("stripe_payment_intent_id = ?", paymentIntentID).First(&txn).Error; err != nil {
			return ErrUnknownIntent
		}
		if txn.Status == models.TransactionStatusRefunded {
			return nil
		}
		if !txn.Status.CanTransition(models.TransactionStatusRefunded) {
			return fmt.Errorf("illegal transaction transition %s -> %s", txn.Status, models.TransactionStatusRefunded)
		}
		txn.Status = models.TransactionStatusRefunded
		if err := tx.Save(&txn).Error; err != nil {
			return err
		}

		var investment models.Investment
		if err := tx.
			Where("stripe_payment_intent_id = ? AND is_deleted = false", paymentIntentID).
			First(&investment).Error; err == nil {
			if investment.Status.CanTransition(models.InvestmentStatusRefunded) {
				investment.Status = models.InvestmentStatusRefunded
				if err := tx.Save(&investment).Error; err != nil {
					return err
				}
			}
		}

		return RefreshProposalAggregates(tx, txn.ProposalID)
	})
}

// RefreshProposalAggregates re-derives the amount_raised and investor_count
// caches from the succeeded rows of the ledger. Callers must run it inside
// the same transaction as the ledger write it follows.
func RefreshProposalAggregates(tx *gorm.DB, proposalID uint) error {
	// Take the proposal row lock before reading the ledger. Under read
	// committed, a competing settlement of the same proposal may commit
	// between our sum and our update; blocking on the lock first means the
	// sum below runs after that commit is visible. sqlite has no FOR UPDATE
	// and serializes writers anyway.
	locked := tx
	if tx.Dialector.Name() != "sqlite" {
		locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var proposal models.Proposal
	if err := locked.Where("id = ?", proposalID).First(&proposal).Error; err != nil {
		return err
	}

	var raised float64
	var investors int64

	row := tx.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0), COUNT(DISTINCT investor_id)").
		Where("proposal_id = ? AND status = ?", proposalID, models.TransactionStatusSucceeded).
		Row()
	if err := row.Scan(&raised, &investors); err != nil {
		return err
	}

	return tx.Model(&models.Proposal{}).
		Where("id = ?", proposalID).
		Updates(map[string]interface{}{
			"amount_raised":  raised,
			"investor_count": investors,
		}).Error
}

func metadataBag(metadata map[string]string) datatypes.JSONMap {
	if len(metadata) == 0 {
		return nil
	}
	bag := datatypes.JSONMap{}
	for k, v := range metadata {
		bag[k] = v
	}
	return bag
}
