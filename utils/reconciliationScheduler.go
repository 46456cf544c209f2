package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"dfp/database"
	"dfp/gateway"
	"dfp/models"
	"dfp/settlement"

	"github.com/robfig/cron/v3"
)

// logReconciler logs reconciler events with timestamp
func logReconciler(message string) {
	log.Printf("[RECONCILER %s] %s", time.Now().Format(time.RFC3339), message)
}

// InitializeReconciliationScheduler sets up the payment reconciliation jobs
func InitializeReconciliationScheduler() {
	logReconciler("Initializing reconciliation scheduler...")

	c := cron.New()

	// Every 15 minutes: settle investments stuck in PENDING. The webhook or
	// the client confirmation normally gets there first; this picks up the
	// cases where both were lost. Safe to repeat thanks to the idempotency
	// key.
	c.AddFunc("*/15 * * * *", ReconcilePendingInvestments)

	// Nightly: audit the proposal aggregate caches against the ledger.
	c.AddFunc("0 2 * * *", AuditProposalAggregates)

	c.Start()
	logReconciler("Reconciliation scheduler started")
}

// ReconcilePendingInvestments re-verifies stale pending payments against
// the provider and settles or fails them.
func ReconcilePendingInvestments() {
	db := database.Database.Db
	cutoff := time.Now().Add(-30 * time.Minute)

	var pending []models.Investment
	if err := db.
		Where("status = ? AND is_deleted = false AND created_at < ?", models.InvestmentStatusPending, cutoff).
		Limit(100).
		Find(&pending).Error; err != nil {
		logReconciler("Error fetching pending investments: " + err.Error())
		return
	}

	if len(pending) == 0 {
		return
	}
	logReconciler(fmt.Sprintf("Re-verifying %d stale pending investments", len(pending)))

	for _, investment := range pending {
		result, err := settlement.Default.Settle(investment.StripePaymentIntentID)
		switch {
		case err == nil:
			if !result.AlreadyApplied {
				logReconciler("Settled stale payment " + investment.StripePaymentIntentID)
				go SendInvestmentReceipt(result.Transaction)
			}
		case errors.Is(err, settlement.ErrNotSucceeded):
			// Definitive non-success or still in flight; Settle already
			// recorded the failure where the provider was definitive.
		case errors.Is(err, gateway.ErrProviderUnavailable):
			logReconciler("Provider unavailable, will retry next run")
			return
		default:
			logReconciler("Error settling " + investment.StripePaymentIntentID + ": " + err.Error())
		}
	}
}

// AuditProposalAggregates recomputes every active proposal's cached totals
// from the ledger and repairs drift. The caches are only ever written next
// to a ledger write, so any drift found here is a bug worth logging.
func AuditProposalAggregates() {
	db := database.Database.Db

	var proposals []models.Proposal
	if err := db.
		Where("status IN ? AND is_deleted = false", []models.ProposalStatus{models.ProposalStatusActive, models.ProposalStatusCompleted}).
		Find(&proposals).Error; err != nil {
		logReconciler("Error fetching proposals for audit: " + err.Error())
		return
	}

	for _, proposal := range proposals {
		var raised float64
		var investors int64
		row := db.Model(&models.Transaction{}).
			Select("COALESCE(SUM(amount), 0), COUNT(DISTINCT investor_id)").
			Where("proposal_id = ? AND status = ?", proposal.ID, models.TransactionStatusSucceeded).
			Row()
		if err := row.Scan(&raised, &investors); err != nil {
			logReconciler("Error auditing proposal: " + err.Error())
			continue
		}

		if raised != proposal.AmountRaised || investors != proposal.InvestorCount {
			logReconciler("Aggregate drift detected on proposal " + proposal.Title + ", repairing")
			if err := settlement.RefreshProposalAggregates(db, proposal.ID); err != nil {
				logReconciler("Error repairing aggregates: " + err.Error())
			}
		}
	}
}
