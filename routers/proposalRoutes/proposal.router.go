package proposalRoutes

import (
	proposalController "dfp/controllers/proposal"
	"dfp/middleware"
	proposalValidator "dfp/validators/proposal"

	"github.com/gofiber/fiber/v2"
)

func SetupProposalRoutes(app *fiber.App) {
	proposalGroup := app.Group("/proposals")

	// Public browsing
	proposalGroup.Get("/", proposalController.ListProposals)
	proposalGroup.Get("/:id", proposalController.GetProposal)

	// Author actions
	proposalGroup.Post("/", proposalValidator.CreateProposal(), middleware.JWTMiddleware, proposalController.CreateProposal)
	proposalGroup.Post("/:id/updates", proposalValidator.CreateUpdate(), middleware.JWTMiddleware, proposalController.CreateUpdate)

	// Admin review
	adminGroup := proposalGroup.Group("/admin")
	adminGroup.Post("/:id/review", proposalValidator.Review(), middleware.JWTMiddleware, middleware.RequireAdmin, proposalController.ReviewProposal)
	adminGroup.Get("/updates/pending", middleware.JWTMiddleware, middleware.RequireAdmin, proposalController.ListPendingUpdates)
	adminGroup.Post("/updates/:id/review", proposalValidator.Review(), middleware.JWTMiddleware, middleware.RequireAdmin, proposalController.ReviewUpdate)
}
