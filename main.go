package main

import (
	"log"
	"time"

	"pubtrivia/config"
	"pubtrivia/handlers"
	"pubtrivia/middleware"
	"pubtrivia/models"
	"pubtrivia/routes"
	"pubtrivia/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.Category{},
		&models.Game{},
		&models.Round{},
		&models.Question{},
		&models.Answer{},
		&models.GameSession{},
		&models.SessionTeam{},
		&models.SessionRound{},
		&models.TeamAnswer{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	catalogService := services.NewCatalogService(db)
	registryService := services.NewRegistryService(db, cfg.DefaultMaxTeams)
	roundService := services.NewRoundService(db)
	scoringService := services.NewScoringService(db)
	sessionService := services.NewSessionService(db, redisClient, roundService, scoringService,
		time.Duration(cfg.AdminTimeoutSeconds)*time.Second)

	// Initialize WebSocket hub
	hub := services.NewHub(sessionService)
	go hub.Run()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(registryService, sessionService, scoringService, catalogService, hub)
	adminHandler := handlers.NewAdminHandler(sessionService, scoringService, hub)
	teamHandler := handlers.NewTeamHandler(sessionService, scoringService, hub)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, sessionHandler, adminHandler, teamHandler, sessionService, registryService, hub)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.BindAddress + ":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
