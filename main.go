package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	controller "github.com/afuentesm/NormaTrack/controller"
	"github.com/afuentesm/NormaTrack/initializers"
	middleware "github.com/afuentesm/NormaTrack/middleware"
	"github.com/afuentesm/NormaTrack/models"
	service "github.com/afuentesm/NormaTrack/service"
)

func init() {
	if err := initializers.LoadEnv(); err != nil {
		log.Printf("No .env file loaded, relying on process environment")
	}
	if err := initializers.ConnectDB(); err != nil {
		log.Fatalf("[CRITICAL] Failed to initialize database connection: %s", err)
	}
	if err := initializers.Migrate(); err != nil {
		log.Fatalf("[CRITICAL] Failed to run database migrations: %s", err)
	}
}

func main() {
	trackerService, err := service.NewTrackerService(initializers.DB)
	if err != nil {
		log.Fatalf("Failed to initialize tracker service: %s", err)
	}
	defer trackerService.Close()

	// One-time pass folding legacy plan/evidence shapes into the canonical map.
	if err := trackerService.NormalizeAll(); err != nil {
		log.Printf("[ERROR] Legacy plan normalization failed: %s", err)
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@normatrack.local"
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}
	if err := trackerService.SeedDefaultAdmin(adminEmail, adminPassword); err != nil {
		log.Printf("[ERROR] Failed to seed default admin: %s", err)
	}

	trackerController := controller.NewTrackerController(trackerService)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		sessionSecret = "normatrack-dev-secret"
		log.Println("SESSION_SECRET not set, using development default")
	}
	router.Use(sessions.Sessions("normatrack_session", cookie.NewStore([]byte(sessionSecret))))

	// Global rate limiter for most routes
	router.Use(middleware.GlobalRateLimiter.Limit())

	router.POST("/login", trackerController.Login)
	router.POST("/logout", trackerController.Logout)

	// Healthcheck endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	authed := router.Group("/", middleware.RequireAuth())

	authed.POST("/requirements", trackerController.CreateRequirement)
	authed.GET("/requirements", trackerController.ListRequirements)
	authed.GET("/requirements/stream", trackerController.StreamRequirements)
	authed.GET("/requirements/:id", trackerController.GetRequirement)
	authed.PUT("/requirements/:id", trackerController.UpdateRequirement)
	authed.DELETE("/requirements/:id", trackerController.DeleteRequirement)

	authed.PUT("/requirements/:id/years/:year/months/:month",
		trackerController.MarkExecution)

	// Evidence upload and review get stricter rate limiting
	authed.POST("/requirements/:id/years/:year/months/:month/evidence",
		middleware.StrictRateLimiter.Limit(),
		trackerController.UploadEvidence)
	authed.PUT("/requirements/:id/years/:year/months/:month/evidence/approve",
		middleware.StrictRateLimiter.Limit(),
		middleware.RequireRole(models.RoleAdmin),
		trackerController.ApproveEvidence)
	authed.PUT("/requirements/:id/years/:year/months/:month/evidence/reject",
		middleware.StrictRateLimiter.Limit(),
		middleware.RequireRole(models.RoleAdmin),
		trackerController.RejectEvidence)
	authed.GET("/requirements/:id/years/:year/months/:month/evidence/aging",
		trackerController.EvidenceAging)

	// Other endpoints
	authed.GET("/search", trackerController.SearchRequirements)
	authed.GET("/dashboard", trackerController.Dashboard)

	authed.GET("/areas", trackerController.ListAreas)
	authed.POST("/areas", middleware.RequireRole(models.RoleAdmin), trackerController.CreateArea)
	authed.DELETE("/areas/:id", middleware.RequireRole(models.RoleAdmin), trackerController.DeleteArea)

	authed.GET("/plants", trackerController.ListPlants)
	authed.POST("/plants", middleware.RequireRole(models.RoleAdmin), trackerController.CreatePlant)
	authed.DELETE("/plants/:id", middleware.RequireRole(models.RoleAdmin), trackerController.DeletePlant)

	authed.GET("/standards", trackerController.ListStandards)
	authed.POST("/standards", middleware.RequireRole(models.RoleAdmin), trackerController.CreateStandard)
	authed.DELETE("/standards/:id", middleware.RequireRole(models.RoleAdmin), trackerController.DeleteStandard)

	authed.GET("/users", middleware.RequireRole(models.RoleAdmin), trackerController.ListUsers)
	authed.GET("/users/stream", middleware.RequireRole(models.RoleAdmin), trackerController.StreamUsers)
	authed.POST("/users", middleware.RequireRole(models.RoleAdmin), trackerController.CreateUser)
	authed.DELETE("/users/:id", middleware.RequireRole(models.RoleAdmin), trackerController.DeleteUser)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	router.Run(":" + port)
}
