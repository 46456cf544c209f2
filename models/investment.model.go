package models

import (
	"time"

	"gorm.io/gorm"
)

// InvestmentStatus defines the lifecycle state of an investment
type InvestmentStatus string

const (
	InvestmentStatusPending   InvestmentStatus = "PENDING"
	InvestmentStatusCompleted InvestmentStatus = "COMPLETED"
	InvestmentStatusFailed    InvestmentStatus = "FAILED"
	InvestmentStatusRefunded  InvestmentStatus = "REFUNDED"
)

var investmentTransitions = map[InvestmentStatus][]InvestmentStatus{
	InvestmentStatusPending:   {InvestmentStatusCompleted, InvestmentStatusFailed},
	InvestmentStatusCompleted: {InvestmentStatusRefunded},
	InvestmentStatusFailed:    {},
	InvestmentStatusRefunded:  {},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s InvestmentStatus) CanTransition(next InvestmentStatus) bool {
	for _, allowed := range investmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Investment ties an investor to a proposal for a specific amount. Rows are
// created PENDING when the payment intent is created; only the settlement
// coordinator moves them to COMPLETED or FAILED after verifying the payment
// with the provider. Only COMPLETED investments count toward aggregates.
type Investment struct {
	gorm.Model
	Reference             string           `gorm:"type:varchar(64);uniqueIndex" json:"reference"` // human-facing receipt code
	InvestorID            uint             `gorm:"not null;index" json:"investorId"`
	ProposalID            uint             `gorm:"not null;index" json:"proposalId"`
	Amount                float64          `gorm:"not null" json:"amount"`
	Currency              string           `gorm:"type:varchar(10);default:'USD'" json:"currency"`
	Status                InvestmentStatus `gorm:"type:varchar(20);default:'PENDING';index" json:"status"`
	StripePaymentIntentID string           `gorm:"type:varchar(255);index" json:"stripePaymentIntentId"`
	CompletedAt           *time.Time       `json:"completedAt,omitempty"`
	IsDeleted             bool             `gorm:"default:false" json:"isDeleted"`

	Investor User     `gorm:"foreignKey:InvestorID" json:"-"`
	Proposal Proposal `gorm:"foreignKey:ProposalID" json:"-"`
}

func (Investment) TableName() string {
	return "investments"
}
