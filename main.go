package main

import (
	"log"
	"os"

	"caprep-backend/access"
	"caprep-backend/conn"
	"caprep-backend/enrollments"
	"caprep-backend/login"
	"caprep-backend/migrations"
	"caprep-backend/payments"
	"caprep-backend/pricing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	db, err := conn.NewMySQL()
	if err != nil {
		log.Fatalf("[main] mysql connection failed: %v", err)
	}
	migrations.Init(db)
	if err := migrations.Migrate(); err != nil {
		log.Fatalf("[main] migrations failed: %v", err)
	}
	if err := migrations.SeedDefaultAdmin(); err != nil {
		log.Printf("[main] admin seed failed: %v", err)
	}

	repo := enrollments.NewRepository(db)
	sessions := login.Sessions{}

	var gateway payments.Gateway
	if rg := payments.NewRazorpayFromEnv(); rg != nil {
		gateway = rg
	} else {
		log.Printf("[main] razorpay not configured; order creation disabled")
	}

	r := gin.Default()

	r.POST("/login", login.Handler)
	r.POST("/register", login.RegisterHandler)
	r.GET("/session", login.SessionHandler)
	r.POST("/logout", login.LogoutHandler)

	pricing.NewHandler().RegisterRoutes(r)
	enrollments.NewHandler(repo, sessions).RegisterRoutes(r)
	payments.NewHandler(repo, sessions, gateway, os.Getenv("RAZORPAY_KEY_SECRET")).RegisterRoutes(r)
	access.NewHandler(access.NewValidator(repo), sessions).RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}
