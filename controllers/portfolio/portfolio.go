package portfolioController

import (
	"dfp/config"
	"dfp/database"
	"dfp/middleware"
	"dfp/models"
	"dfp/stats"
	"dfp/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/now"
)

// GetPortfolio returns the investor's dashboard: holdings, ledger-derived
// totals, month-to-date contributions and the total converted into the
// investor's display currency.
func GetPortfolio(c *fiber.Ctx) error {
	userId := c.Locals("userId").(uint)

	db := database.Database.Db

	var user models.User
	if err := db.Where("id = ? AND is_deleted = false", userId).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Access Denied!", nil)
	}

	userStats, err := stats.ForUser(db, userId, 0)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to compute statistics!", nil)
	}

	type Holding struct {
		models.Investment
		ProposalTitle  string                `json:"proposalTitle"`
		ProposalStatus models.ProposalStatus `json:"proposalStatus"`
	}

	var holdings []Holding
	if err := db.
		Table("investments").
		Select("investments.*, proposals.title AS proposal_title, proposals.status AS proposal_status").
		Joins("JOIN proposals ON proposals.id = investments.proposal_id").
		Where("investments.investor_id = ? AND investments.is_deleted = false", userId).
		Order("investments.created_at DESC").
		Scan(&holdings).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch holdings!", nil)
	}

	// Month-to-date contributions from the ledger
	var monthToDate float64
	if err := db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("investor_id = ? AND status = ? AND created_at >= ?", userId, models.TransactionStatusSucceeded, now.BeginningOfMonth()).
		Row().
		Scan(&monthToDate); err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to compute statistics!", nil)
	}

	displayCurrency := user.DisplayCurrency
	if displayCurrency == "" {
		displayCurrency = config.AppConfig.BaseCurrency
	}
	converted, fxErr := utils.ConvertAmount(userStats.TotalInvestment, config.AppConfig.BaseCurrency, displayCurrency)
	if fxErr != nil {
		// Conversion is display sugar; fall back to the base amount.
		converted = userStats.TotalInvestment
		displayCurrency = config.AppConfig.BaseCurrency
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Portfolio fetched!", fiber.Map{
		"holdings":         holdings,
		"totalInvestment":  userStats.TotalInvestment,
		"numberOfProjects": userStats.NumberOfProjects,
		"monthToDate":      monthToDate,
		"displayTotal": fiber.Map{
			"amount":   converted,
			"currency": displayCurrency,
		},
	})
}

// GetHolding returns the investor's position on one proposal, including
// the ownership share of everything raised so far.
func GetHolding(c *fiber.Ctx) error {
	userId := c.Locals("userId").(uint)

	proposalId, err := c.ParamsInt("proposalId")
	if err != nil || proposalId < 1 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid proposal ID!", nil)
	}

	db := database.Database.Db

	var proposal models.Proposal
	if err := db.Where("id = ? AND is_deleted = false", proposalId).First(&proposal).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Proposal not found!", nil)
	}

	userStats, err := stats.ForUser(db, userId, proposal.ID)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to compute statistics!", nil)
	}

	proposalStats, err := stats.ForProposal(db, proposal.ID)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to compute statistics!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Holding fetched!", fiber.Map{
		"proposalId":               proposal.ID,
		"proposalTitle":            proposal.Title,
		"currentProjectInvestment": userStats.CurrentProjectInvestment,
		"amountRaised":             proposalStats.AmountRaised,
		"investorCount":            proposalStats.InvestorCount,
		"ownershipShare":           stats.OwnershipShare(userStats, proposalStats),
	})
}
