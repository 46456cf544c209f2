package portfolioRoutes

import (
	portfolioController "dfp/controllers/portfolio"
	"dfp/middleware"

	"github.com/gofiber/fiber/v2"
)

func SetupPortfolioRoutes(app *fiber.App) {
	portfolioGroup := app.Group("/portfolio")

	portfolioGroup.Get("/", middleware.JWTMiddleware, portfolioController.GetPortfolio)
	portfolioGroup.Get("/holdings/:proposalId", middleware.JWTMiddleware, portfolioController.GetHolding)
}
