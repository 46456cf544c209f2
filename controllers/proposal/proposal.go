package proposalController

import (
	"log"

	"dfp/database"
	"dfp/middleware"
	"dfp/models"
	"dfp/stats"
	"dfp/utils"
	proposalValidator "dfp/validators/proposal"

	"github.com/gofiber/fiber/v2"
)

// CreateProposal registers a new funding proposal in pending status,
// awaiting admin approval before it can accept investments.
func CreateProposal(c *fiber.Ctx) error {
	userId := c.Locals("userId").(uint)

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = false", userId).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Access Denied!", nil)
	}

	reqData, ok := c.Locals("validatedProposal").(*proposalValidator.CreateProposalRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	proposal := models.Proposal{
		Title:       reqData.Title,
		Description: reqData.Description,
		Category:    reqData.Category,
		ImageURL:    reqData.ImageURL,
		AuthorID:    userId,
		Budget:      reqData.Budget,
		Currency:    reqData.Currency,
		Status:      models.ProposalStatusPending,
		Deadline:    reqData.Deadline,
	}

	if err := database.Database.Db.Create(&proposal).Error; err != nil {
		log.Printf("Error saving proposal: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create proposal!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Proposal submitted for review.", proposal)
}

// ListProposals returns proposals with optional status/category filters
// and pagination. Non-admin callers only ever see active and completed
// proposals.
func ListProposals(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)
	status := c.Query("status", string(models.ProposalStatusActive))
	category := c.Query("category")

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if status != string(models.ProposalStatusActive) && status != string(models.ProposalStatusCompleted) {
		status = string(models.ProposalStatusActive)
	}

	offset := (page - 1) * limit
	db := database.Database.Db

	query := db.Model(&models.Proposal{}).Where("status = ? AND is_deleted = false", status)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var total int64
	query.Count(&total)

	var proposals []models.Proposal
	if err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&proposals).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch proposals!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Proposals fetched!", fiber.Map{
		"proposals": proposals,
		"pagination": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// GetProposal returns one proposal with statistics recomputed from the
// transaction ledger, plus its approved updates.
func GetProposal(c *fiber.Ctx) error {
	proposalId, err := c.ParamsInt("id")
	if err != nil || proposalId < 1 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid proposal ID!", nil)
	}

	db := database.Database.Db

	var proposal models.Proposal
	if err := db.Where("id = ? AND is_deleted = false", proposalId).First(&proposal).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Proposal not found!", nil)
	}

	proposalStats, err := stats.ForProposal(db, proposal.ID)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to compute statistics!", nil)
	}

	var updates []models.ProposalUpdate
	db.Where("proposal_id = ? AND review = ? AND is_deleted = false", proposal.ID, models.UpdateReviewApproved).
		Order("created_at DESC").
		Find(&updates)

	fundingProgress := 0.0
	if proposal.Budget > 0 {
		fundingProgress = proposalStats.AmountRaised / proposal.Budget * 100
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Proposal fetched!", fiber.Map{
		"proposal":        proposal,
		"amountRaised":    proposalStats.AmountRaised,
		"investorCount":   proposalStats.InvestorCount,
		"fundingProgress": fundingProgress,
		"updates":         updates,
	})
}

// ReviewProposal moves a pending proposal to active or rejected (Admin only)
func ReviewProposal(c *fiber.Ctx) error {
	proposalId, err := c.ParamsInt("id")
	if err != nil || proposalId < 1 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid proposal ID!", nil)
	}

	reqData, ok := c.Locals("validatedReview").(*proposalValidator.ReviewRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	db := database.Database.Db

	var proposal models.Proposal
	if err := db.Where("id = ? AND is_deleted = false", proposalId).First(&proposal).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Proposal not found!", nil)
	}

	if proposal.Status != models.ProposalStatusPending {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Only pending proposals can be reviewed!", nil)
	}

	if reqData.Action == "APPROVE" {
		proposal.Status = models.ProposalStatusActive
	} else {
		proposal.Status = models.ProposalStatusRejected
	}

	if err := db.Save(&proposal).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update proposal!", nil)
	}

	if proposal.Status == models.ProposalStatusActive {
		go utils.SendProposalApprovedEmail(proposal)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Proposal reviewed!", fiber.Map{
		"proposalId": proposal.ID,
		"status":     proposal.Status,
	})
}

// CreateUpdate lets the proposal author post a progress update, which goes
// to admin review before investors can see it.
func CreateUpdate(c *fiber.Ctx) error {
	userId := c.Locals("userId").(uint)

	proposalId, err := c.ParamsInt("id")
	if err != nil || proposalId < 1 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid proposal ID!", nil)
	}

	reqData, ok := c.Locals("validatedUpdate").(*proposalValidator.ProposalUpdateRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	db := database.Database.Db

	var proposal models.Proposal
	if err := db.Where("id = ? AND is_deleted = false", proposalId).First(&proposal).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Proposal not found!", nil)
	}

	if proposal.AuthorID != userId {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Only the proposal author can post updates!", nil)
	}

	update := models.ProposalUpdate{
		ProposalID: proposal.ID,
		AuthorID:   userId,
		Title:      reqData.Title,
		Body:       reqData.Body,
		Review:     models.UpdateReviewPending,
	}

	if err := db.Create(&update).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to post update!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Update submitted for review.", update)
}

// ListPendingUpdates returns all updates awaiting review (Admin only)
func ListPendingUpdates(c *fiber.Ctx) error {
	var updates []models.ProposalUpdate
	if err := database.Database.Db.
		Where("review = ? AND is_deleted = false", models.UpdateReviewPending).
		Order("created_at ASC").
		Find(&updates).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch updates!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Pending updates fetched!", updates)
}

// ReviewUpdate approves or rejects a proposal update (Admin only)
func ReviewUpdate(c *fiber.Ctx) error {
	adminId := c.Locals("userId").(uint)

	updateId, err := c.ParamsInt("id")
	if err != nil || updateId < 1 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid update ID!", nil)
	}

	reqData, ok := c.Locals("validatedReview").(*proposalValidator.ReviewRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	db := database.Database.Db

	var update models.ProposalUpdate
	if err := db.Where("id = ? AND is_deleted = false", updateId).First(&update).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Update not found!", nil)
	}

	if update.Review != models.UpdateReviewPending {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Update has already been reviewed!", nil)
	}

	if reqData.Action == "APPROVE" {
		update.Review = models.UpdateReviewApproved
	} else {
		update.Review = models.UpdateReviewRejected
	}
	update.ReviewerID = adminId
	update.ReviewNote = reqData.Note

	if err := db.Save(&update).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to review update!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Update reviewed!", fiber.Map{
		"updateId": update.ID,
		"review":   update.Review,
	})
}
