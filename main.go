package main

import (
	"log"

	"dfp/config"
	"dfp/database"
	"dfp/gateway"
	authRoutes "dfp/routers/authRoutes"
	paymentRoutes "dfp/routers/paymentRoutes"
	portfolioRoutes "dfp/routers/portfolioRoutes"
	proposalRoutes "dfp/routers/proposalRoutes"
	"dfp/settlement"
	"dfp/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()

	settlement.Init(database.Database.Db, gateway.NewStripeGateway(config.AppConfig.StripeSecretKey))

	utils.InitializeReconciliationScheduler()

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",
		AllowHeaders: "Content-Type,Authorization,Stripe-Signature",
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	authRoutes.SetupAuthRoutes(app)
	proposalRoutes.SetupProposalRoutes(app)
	paymentRoutes.SetupPaymentRoutes(app)
	portfolioRoutes.SetupPortfolioRoutes(app)

	log.Printf("Server is running on port %s", config.AppConfig.Port)
	log.Fatal(app.Listen(":" + config.AppConfig.Port))
}
