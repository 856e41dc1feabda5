package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"

	"github.com/instoredealz-omar/instoreaws-sub000/api/routes"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/clock"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/config"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/handlers"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/pinsecurity"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/ratelimit"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
	mongorepo "github.com/instoredealz-omar/instoreaws-sub000/internal/repositories/mongodb"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/services"
	"github.com/instoredealz-omar/instoreaws-sub000/pkg/mongodb"
)

func main() {
	// Local overrides; absence is fine in deployed environments
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	mongoClient, err := mongodb.NewClient(cfg.MongoDB.URI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			slog.Error("error disconnecting from MongoDB", "error", err)
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)

	// Repositories
	claimRepoImpl := mongorepo.NewClaimRepository(db)
	if err := claimRepoImpl.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to create claim indexes: %v", err)
	}

	var dealRepo repositories.DealRepository = mongorepo.NewDealRepository(db)
	var claimRepo repositories.ClaimRepository = claimRepoImpl
	var attemptRepo repositories.PinAttemptRepository = mongorepo.NewPinAttemptRepository(db)
	var userRepo repositories.UserRepository = mongorepo.NewUserRepository(db)
	var vendorRepo repositories.VendorRepository = mongorepo.NewVendorRepository(db)

	// Core collaborators
	clk := clock.Real{}
	pins := pinsecurity.New(cfg.Pin.Secret, cfg.Pin.RotationInterval, cfg.Pin.PinTTL, clk)
	limiter := ratelimit.NewLimiter(attemptRepo, ratelimit.Policy{
		MaxFailures: cfg.RateLimit.MaxFailures,
		Window:      cfg.RateLimit.Window,
	}, clk)

	// Services
	claimService := services.NewClaimService(dealRepo, claimRepo, userRepo, vendorRepo, limiter, pins, clk, cfg.Pin.ClaimTTL)
	verificationService := services.NewVerificationService(dealRepo, claimRepo, userRepo, attemptRepo, claimService, limiter, pins, clk)

	// Handlers
	handlerDeps := routes.HandlerDependencies{
		ClaimHandler:        handlers.NewClaimHandler(claimService),
		VerificationHandler: handlers.NewVerificationHandler(verificationService),
		DealHandler:         handlers.NewDealHandler(verificationService),
	}

	router := routes.SetupRouter(cfg, handlerDeps)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	slog.Info("server starting", "port", cfg.Server.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	slog.Info("server exiting")
}
