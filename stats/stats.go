// Package stats computes derived investment statistics from the
// transaction ledger. Reads recompute from the ledger every time; because
// the ledger deduplicates by payment-intent id, repeated invocation with an
// unchanged ledger always yields the same numbers.
package stats

import (
	"dfp/models"

	"gorm.io/gorm"
)

// ProposalStats summarizes capital raised for one proposal.
type ProposalStats struct {
	AmountRaised  float64 `json:"amountRaised"`
	InvestorCount int64   `json:"investorCount"`
}

// UserStats summarizes one investor's position.
type UserStats struct {
	TotalInvestment          float64 `json:"totalInvestment"`
	NumberOfProjects         int64   `json:"numberOfProjects"`
	CurrentProjectInvestment float64 `json:"currentProjectInvestment"`
}

// ForProposal sums all succeeded transactions referencing the proposal and
// counts distinct investors among them.
func ForProposal(db *gorm.DB, proposalID uint) (ProposalStats, error) {
	var out ProposalStats

	row := db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0), COUNT(DISTINCT investor_id)").
		Where("proposal_id = ? AND status = ?", proposalID, models.TransactionStatusSucceeded).
		Row()
	if err := row.Scan(&out.AmountRaised, &out.InvestorCount); err != nil {
		return ProposalStats{}, err
	}

	return out, nil
}

// ForUser sums the investor's succeeded transactions across all proposals,
// counts the distinct proposals among them, and isolates the slice invested
// in the given proposal.
func ForUser(db *gorm.DB, userID, proposalID uint) (UserStats, error) {
	var out UserStats

	row := db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0), COUNT(DISTINCT proposal_id)").
		Where("investor_id = ? AND status = ?", userID, models.TransactionStatusSucceeded).
		Row()
	if err := row.Scan(&out.TotalInvestment, &out.NumberOfProjects); err != nil {
		return UserStats{}, err
	}

	if proposalID != 0 {
		err := db.Model(&models.Transaction{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("investor_id = ? AND proposal_id = ? AND status = ?", userID, proposalID, models.TransactionStatusSucceeded).
			Row().
			Scan(&out.CurrentProjectInvestment)
		if err != nil {
			return UserStats{}, err
		}
	}

	return out, nil
}

// OwnershipShare is the investor's percentage of everything raised for the
// proposal. A proposal with nothing raised yields exactly 0, never NaN.
func OwnershipShare(user UserStats, proposal ProposalStats) float64 {
	if proposal.AmountRaised <= 0 {
		return 0
	}
	return user.CurrentProjectInvestment / proposal.AmountRaised * 100
}
