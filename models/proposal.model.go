package models

import (
	"time"

	"gorm.io/gorm"
)

// ProposalStatus defines the lifecycle state of a funding proposal
type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusActive    ProposalStatus = "active"
	ProposalStatusCompleted ProposalStatus = "completed"
	ProposalStatusRejected  ProposalStatus = "rejected"
)

// Proposal is a fundraising project investors can contribute to.
//
// AmountRaised and InvestorCount are caches derived from the transaction
// ledger. They are only ever written inside the same database transaction
// as a ledger write; the ledger stays the source of truth.
type Proposal struct {
	gorm.Model
	Title       string  `gorm:"type:varchar(255);not null" json:"title"`
	Description string  `gorm:"type:text" json:"description"`
	Category    string  `gorm:"type:varchar(100);index" json:"category"`
	ImageURL    string  `gorm:"type:varchar(512)" json:"imageUrl"`
	AuthorID    uint    `gorm:"not null;index" json:"authorId"`
	Budget      float64 `gorm:"not null" json:"budget"` // funding target, major units
	Currency    string  `gorm:"type:varchar(10);default:'USD'" json:"currency"`

	AmountRaised  float64 `gorm:"default:0" json:"amountRaised"`
	InvestorCount int64   `gorm:"default:0" json:"investorCount"`

	Status    ProposalStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Deadline  *time.Time     `json:"deadline,omitempty"`
	IsDeleted bool           `gorm:"default:false" json:"isDeleted"`

	Author User `gorm:"foreignKey:AuthorID" json:"-"`
}

func (Proposal) TableName() string {
	return "proposals"
}

// UpdateReviewStatus defines review state for proposal updates
type UpdateReviewStatus string

const (
	UpdateReviewPending  UpdateReviewStatus = "PENDING"
	UpdateReviewApproved UpdateReviewStatus = "APPROVED"
	UpdateReviewRejected UpdateReviewStatus = "REJECTED"
)

// ProposalUpdate is a progress note posted by a proposal author,
// visible to investors only after an admin approves it.
type ProposalUpdate struct {
	gorm.Model
	ProposalID uint               `gorm:"not null;index" json:"proposalId"`
	AuthorID   uint               `gorm:"not null" json:"authorId"`
	Title      string             `gorm:"type:varchar(255);not null" json:"title"`
	Body       string             `gorm:"type:text" json:"body"`
	Review     UpdateReviewStatus `gorm:"type:varchar(20);default:'PENDING';index" json:"review"`
	ReviewerID uint               `gorm:"default:0" json:"reviewerId"`
	ReviewNote string             `gorm:"type:text" json:"reviewNote"`
	IsDeleted  bool               `gorm:"default:false" json:"isDeleted"`

	Proposal Proposal `gorm:"foreignKey:ProposalID" json:"-"`
}

func (ProposalUpdate) TableName() string {
	return "proposal_updates"
}
