package settlement

import (
	"fmt"
	"testing"

	"dfp/gateway"
	"dfp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeGateway is an in-memory payment provider. Tests flip intent statuses
// to simulate the user completing or abandoning the payment form.
type fakeGateway struct {
	intents     map[string]*gateway.Intent
	retrieveErr error
	seq         int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*gateway.Intent{}}
}

func (f *fakeGateway) CreateIntent(amount float64, currency string, metadata map[string]string) (*gateway.Intent, error) {
	if amount <= 0 {
		return nil, gateway.ErrInvalidAmount
	}
	f.seq++
	id := fmt.Sprintf("pi_test_%03d", f.seq)
	intent := &gateway.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       gateway.IntentStatusProcessing,
		Amount:       amount,
		Currency:     currency,
		Metadata:     metadata,
	}
	f.intents[id] = intent
	return intent, nil
}

func (f *fakeGateway) RetrieveIntent(id string) (*gateway.Intent, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	intent, ok := f.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent", gateway.ErrProviderUnavailable)
	}
	return intent, nil
}

func (f *fakeGateway) succeed(id string) {
	f.intents[id].Status = gateway.IntentStatusSucceeded
}

func (f *fakeGateway) cancel(id, reason string) {
	f.intents[id].Status = gateway.IntentStatusCanceled
	f.intents[id].FailureReason = reason
}

func setupTest(t *testing.T) (*gorm.DB, *fakeGateway, *Coordinator) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Proposal{},
		&models.ProposalUpdate{},
		&models.Investment{},
		&models.Transaction{},
	))

	gw := newFakeGateway()
	return db, gw, NewCoordinator(db, gw)
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Name: "Investor", Email: email, Password: "x"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

var authorSeq int

func seedProposal(t *testing.T, db *gorm.DB, status models.ProposalStatus) models.Proposal {
	t.Helper()
	authorSeq++
	author := seedUser(t, db, fmt.Sprintf("author-%d@test.io", authorSeq))
	proposal := models.Proposal{
		Title:    "Solar Microgrid",
		AuthorID: author.ID,
		Budget:   10000,
		Currency: "USD",
		Status:   status,
	}
	require.NoError(t, db.Create(&proposal).Error)
	return proposal
}

// requireCacheMatchesLedger asserts the invariant that the proposal's
// cached totals equal what the ledger says.
func requireCacheMatchesLedger(t *testing.T, db *gorm.DB, proposalID uint) {
	t.Helper()

	var raised float64
	var investors int64
	row := db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0), COUNT(DISTINCT investor_id)").
		Where("proposal_id = ? AND status = ?", proposalID, models.TransactionStatusSucceeded).
		Row()
	require.NoError(t, row.Scan(&raised, &investors))

	var proposal models.Proposal
	require.NoError(t, db.First(&proposal, proposalID).Error)
	require.Equal(t, raised, proposal.AmountRaised, "amount_raised cache drifted from ledger")
	require.Equal(t, investors, proposal.InvestorCount, "investor_count cache drifted from ledger")
}

func TestCreateIntentRecordsPendingInvestment(t *testing.T) {
	db, _, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, investment, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", map[string]string{"note": "for grandma's village"})
	require.NoError(t, err)

	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, models.InvestmentStatusPending, investment.Status)
	assert.Equal(t, intent.ID, investment.StripePaymentIntentID)
	assert.NotEmpty(t, investment.Reference)

	assert.Equal(t, fmt.Sprint(proposal.ID), intent.Metadata["proposal_id"])
	assert.Equal(t, fmt.Sprint(investor.ID), intent.Metadata["investor_id"])
	assert.Equal(t, "for grandma's village", intent.Metadata["note"])
}

func TestCreateIntentRejectsInactiveProposal(t *testing.T) {
	db, _, coord := setupTest(t)
	investor := seedUser(t, db, "u1@test.io")

	for _, status := range []models.ProposalStatus{
		models.ProposalStatusPending,
		models.ProposalStatusCompleted,
		models.ProposalStatusRejected,
	} {
		proposal := seedProposal(t, db, status)
		_, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
		assert.ErrorIs(t, err, ErrProposalNotOpen, "status %s", status)
	}
}

func TestCreateIntentRejectsInvalidAmount(t *testing.T) {
	db, _, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	_, _, err := coord.CreateIntent(investor.ID, proposal.ID, 0, "USD", nil)
	assert.ErrorIs(t, err, gateway.ErrInvalidAmount)

	_, _, err = coord.CreateIntent(investor.ID, proposal.ID, -5, "USD", nil)
	assert.ErrorIs(t, err, gateway.ErrInvalidAmount)
}

func TestSettleAppliesLedgerExactlyOnce(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.succeed(intent.ID)

	// Client confirmation path settles first.
	result, err := coord.Settle(intent.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, models.TransactionStatusSucceeded, result.Transaction.Status)
	requireCacheMatchesLedger(t, db, proposal.ID)

	var proposalRow models.Proposal
	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 100.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(1), proposalRow.InvestorCount)

	var investment models.Investment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&investment).Error)
	assert.Equal(t, models.InvestmentStatusCompleted, investment.Status)
	assert.NotNil(t, investment.CompletedAt)

	// The webhook arrives afterwards for the same intent: a no-op.
	replay, err := coord.Settle(intent.ID)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyApplied)
	assert.Equal(t, result.Transaction.ID, replay.Transaction.ID)

	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 100.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(1), proposalRow.InvestorCount)
	requireCacheMatchesLedger(t, db, proposal.ID)

	var count int64
	db.Model(&models.Transaction{}).Where("stripe_payment_intent_id = ?", intent.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSettleDuplicateWebhookNeverDoubleCounts(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 250, "USD", nil)
	require.NoError(t, err)
	gw.succeed(intent.ID)

	for i := 0; i < 5; i++ {
		_, err := coord.Settle(intent.ID)
		require.NoError(t, err)
	}

	var proposalRow models.Proposal
	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 250.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(1), proposalRow.InvestorCount)
	requireCacheMatchesLedger(t, db, proposal.ID)
}

func TestSettleRaceLoserReportsNoOp(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.succeed(intent.ID)

	// Simulate the other process winning between this caller's fast-path
	// check and its insert: the transaction row already exists when apply
	// runs.
	winner, err := coord.Settle(intent.ID)
	require.NoError(t, err)

	resolved, err := coord.apply(gw.intents[intent.ID])
	require.NoError(t, err)
	assert.True(t, resolved.AlreadyApplied)
	assert.Equal(t, winner.Transaction.ID, resolved.Transaction.ID)
	requireCacheMatchesLedger(t, db, proposal.ID)
}

func TestSettleFailedPaymentLeavesAggregatesUntouched(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.cancel(intent.ID, "Your card was declined.")

	_, err = coord.Settle(intent.ID)
	assert.ErrorIs(t, err, ErrNotSucceeded)
	assert.Contains(t, err.Error(), "Your card was declined.")

	var proposalRow models.Proposal
	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 0.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(0), proposalRow.InvestorCount)

	var investment models.Investment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&investment).Error)
	assert.Equal(t, models.InvestmentStatusFailed, investment.Status)

	var txn models.Transaction
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&txn).Error)
	assert.Equal(t, models.TransactionStatusFailed, txn.Status)
	assert.Equal(t, "Your card was declined.", txn.FailureReason)
}

func TestSettleStillProcessingWritesNothing(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	// Intent stays in processing; treat as not settled but not failed.

	_, err = coord.Settle(intent.ID)
	assert.ErrorIs(t, err, ErrNotSucceeded)

	var count int64
	db.Model(&models.Transaction{}).Count(&count)
	assert.Equal(t, int64(0), count)

	var investment models.Investment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&investment).Error)
	assert.Equal(t, models.InvestmentStatusPending, investment.Status)

	// The payment later succeeds; a retried settle applies normally.
	gw.succeed(intent.ID)
	result, err := coord.Settle(intent.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	requireCacheMatchesLedger(t, db, proposal.ID)
}

func TestSettleProviderOutageIsRetryable(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.succeed(intent.ID)

	gw.retrieveErr = fmt.Errorf("%w: connection reset", gateway.ErrProviderUnavailable)
	_, err = coord.Settle(intent.ID)
	assert.ErrorIs(t, err, gateway.ErrProviderUnavailable)

	// Nothing was written during the outage.
	var count int64
	db.Model(&models.Transaction{}).Count(&count)
	assert.Equal(t, int64(0), count)

	// Provider recovers; the retried call settles.
	gw.retrieveErr = nil
	result, err := coord.Settle(intent.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	requireCacheMatchesLedger(t, db, proposal.ID)
}

func TestSettleUnknownIntentFails(t *testing.T) {
	db, gw, coord := setupTest(t)
	seedProposal(t, db, models.ProposalStatusActive)

	// A verified intent with no investment row behind it.
	gw.intents["pi_orphan"] = &gateway.Intent{
		ID:     "pi_orphan",
		Status: gateway.IntentStatusSucceeded,
		Amount: 100,
	}

	_, err := coord.Settle("pi_orphan")
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestTwoInvestorsAggregate(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	u1 := seedUser(t, db, "u1@test.io")
	u2 := seedUser(t, db, "u2@test.io")

	first, _, err := coord.CreateIntent(u1.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	second, _, err := coord.CreateIntent(u2.ID, proposal.ID, 50, "USD", nil)
	require.NoError(t, err)

	gw.succeed(first.ID)
	gw.succeed(second.ID)

	_, err = coord.Settle(first.ID)
	require.NoError(t, err)
	requireCacheMatchesLedger(t, db, proposal.ID)
	_, err = coord.Settle(second.ID)
	require.NoError(t, err)
	requireCacheMatchesLedger(t, db, proposal.ID)

	var proposalRow models.Proposal
	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 150.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(2), proposalRow.InvestorCount)
}

func TestRefundReversesAggregates(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.succeed(intent.ID)
	_, err = coord.Settle(intent.ID)
	require.NoError(t, err)

	require.NoError(t, coord.Refund(intent.ID))
	requireCacheMatchesLedger(t, db, proposal.ID)

	var proposalRow models.Proposal
	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 0.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(0), proposalRow.InvestorCount)

	var txn models.Transaction
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&txn).Error)
	assert.Equal(t, models.TransactionStatusRefunded, txn.Status)

	var investment models.Investment
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&investment).Error)
	assert.Equal(t, models.InvestmentStatusRefunded, investment.Status)

	// Refund replay is a no-op.
	require.NoError(t, coord.Refund(intent.ID))
}

func TestRefundRequiresSettledTransaction(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.cancel(intent.ID, "declined")
	_, _ = coord.Settle(intent.ID)

	err = coord.Refund(intent.ID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transaction transition")
}

func TestRefreshProposalAggregatesReReadsLedger(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	u1 := seedUser(t, db, "u1@test.io")
	u2 := seedUser(t, db, "u2@test.io")

	for _, c := range []struct {
		user   models.User
		amount float64
	}{{u1, 100}, {u2, 60}} {
		intent, _, err := coord.CreateIntent(c.user.ID, proposal.ID, c.amount, "USD", nil)
		require.NoError(t, err)
		gw.succeed(intent.ID)
		_, err = coord.Settle(intent.ID)
		require.NoError(t, err)
	}

	// Simulate a cache write that landed with a stale single-payment total:
	// the refresh must re-derive from the full ledger, not trust the row.
	require.NoError(t, db.Model(&models.Proposal{}).
		Where("id = ?", proposal.ID).
		Updates(map[string]interface{}{"amount_raised": 100.0, "investor_count": 1}).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return RefreshProposalAggregates(tx, proposal.ID)
	}))

	var proposalRow models.Proposal
	require.NoError(t, db.First(&proposalRow, proposal.ID).Error)
	assert.Equal(t, 160.0, proposalRow.AmountRaised)
	assert.Equal(t, int64(2), proposalRow.InvestorCount)
	requireCacheMatchesLedger(t, db, proposal.ID)
}

func TestRefreshProposalAggregatesUnknownProposal(t *testing.T) {
	db, _, _ := setupTest(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return RefreshProposalAggregates(tx, 9999)
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMarkFailedIgnoresSettledPayments(t *testing.T) {
	db, gw, coord := setupTest(t)
	proposal := seedProposal(t, db, models.ProposalStatusActive)
	investor := seedUser(t, db, "u1@test.io")

	intent, _, err := coord.CreateIntent(investor.ID, proposal.ID, 100, "USD", nil)
	require.NoError(t, err)
	gw.succeed(intent.ID)
	_, err = coord.Settle(intent.ID)
	require.NoError(t, err)

	// A stray failure event after settlement must not unwind anything.
	require.NoError(t, coord.MarkFailed(intent.ID, "stale event"))

	var txn models.Transaction
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", intent.ID).First(&txn).Error)
	assert.Equal(t, models.TransactionStatusSucceeded, txn.Status)
	requireCacheMatchesLedger(t, db, proposal.ID)
}
