package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionStatus defines the status of a payment-provider transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// transactionTransitions is the allowed transition table. Status moves are
// monotonic: a succeeded transaction can only be refunded, never reopened.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusSucceeded, TransactionStatusFailed},
	TransactionStatusSucceeded: {TransactionStatusRefunded},
	TransactionStatusFailed:    {},
	TransactionStatusRefunded:  {},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transaction is an immutable record of a single payment attempt, keyed by
// the provider's payment-intent id. The unique index on
// StripePaymentIntentID is the storage-level idempotency key: the settlement
// path relies on insert-or-conflict against it to guarantee exactly-once
// ledger application across racing confirm/webhook triggers.
type Transaction struct {
	gorm.Model
	StripePaymentIntentID string            `gorm:"type:varchar(255);uniqueIndex;not null" json:"stripePaymentIntentId"`
	InvestorID            uint              `gorm:"not null;index" json:"investorId"`
	ProposalID            uint              `gorm:"not null;index" json:"proposalId"`
	Amount                float64           `gorm:"not null" json:"amount"` // major currency units
	Currency              string            `gorm:"type:varchar(10);default:'USD'" json:"currency"`
	Status                TransactionStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	FailureReason         string            `gorm:"type:text" json:"failureReason"`

	// Metadata is the opaque correlation bag echoed back by the provider.
	// proposal_id and investor_id are promoted to typed columns above;
	// the raw bag is kept for audit.
	Metadata datatypes.JSONMap `json:"metadata"`

	Investor User     `gorm:"foreignKey:InvestorID" json:"-"`
	Proposal Proposal `gorm:"foreignKey:ProposalID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
