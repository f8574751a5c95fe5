package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"practice_arena/internal/api"
	"practice_arena/internal/app/service"
	"practice_arena/internal/app/worker"
	"practice_arena/internal/common/security"
	"practice_arena/internal/domain/repository"
	"practice_arena/internal/platform/cache"
	"practice_arena/internal/platform/config"
	"practice_arena/internal/platform/database"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()
	fmt.Println("Redis connected.")

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)

	// 6. Initialize Services
	authService := service.NewAuthService(userRepo)
	contestService := service.NewContestService(contestRepo, cache.RDB)

	// 7. Initialize Cache Refresher (as a goroutine)
	refresher := worker.NewRecentRefresher(contestService, config.AppConfig.RecentRefreshInterval)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go refresher.Start(workerCtx)
	fmt.Println("Recent-contest refresher started.")

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(authService, contestService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	workerCancel() // Signal refresher to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and refresher stopped gracefully.")
}
