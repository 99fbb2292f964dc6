package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veriHabitAPI/database"
	"veriHabitAPI/handlers"
	"veriHabitAPI/internal/judge"
	"veriHabitAPI/internal/storage"
	"veriHabitAPI/middleware"
	"veriHabitAPI/services"
)

var (
	dbPool              *pgxpool.Pool
	userService         *services.UserService
	habitService        *services.HabitService
	submissionService   *services.SubmissionService
	communityService    *services.CommunityService
	verificationService *services.VerificationService
)

func setup() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	dbPool, err = database.Connect(ctx, dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	log.Println("Successfully connected to Postgres")

	if err := database.RunMigrations(ctx, dbPool, "./migrations/001_create_tables.sql"); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is not set")
	}
	aiJudge, err := judge.NewGeminiJudge(ctx, geminiKey)
	if err != nil {
		log.Fatal("Failed to initialize Gemini judge:", err)
	}

	imageStore, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    os.Getenv("MINIO_BUCKET"),
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	})
	if err != nil {
		log.Fatal("Failed to initialize image store:", err)
	}

	userService = services.NewUserService(dbPool)
	habitService = services.NewHabitService(dbPool)
	submissionService = services.NewSubmissionService(dbPool)
	communityService = services.NewCommunityService(dbPool)
	verificationService = services.NewVerificationService(dbPool, aiJudge, imageStore)

	middleware.InitPrometheus()
}

func main() {
	setup()
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	habitHandler := handlers.NewHabitHandler(habitService)
	verifyHandler := handlers.NewVerifyHandler(verificationService)
	submissionHandler := handlers.NewSubmissionHandler(submissionService)
	communityHandler := handlers.NewCommunityHandler(communityService, userService)
	webhookHandler := handlers.NewWebhookHandler(userService)

	go middleware.CleanupVisitors()

	r := newRouter(habitHandler, verifyHandler, submissionHandler, communityHandler, webhookHandler)

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-timezone"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func newRouter(
	habitHandler *handlers.HabitHandler,
	verifyHandler *handlers.VerifyHandler,
	submissionHandler *handlers.SubmissionHandler,
	communityHandler *handlers.CommunityHandler,
	webhookHandler *handlers.WebhookHandler,
) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)
	r.Use(middleware.TimezoneMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "veriHabit-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()

	// The feed is readable without an account; a logged-in viewer additionally
	// gets isLiked flags and their block list applied.
	feed := api.PathPrefix("/community/feed").Subrouter()
	feed.Use(middleware.OptionalAuthMiddleware)
	feed.HandleFunc("", communityHandler.GetFeed).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/habits", habitHandler.ListHabits).Methods("GET")
	protected.HandleFunc("/habits", habitHandler.CreateHabit).Methods("POST")
	protected.HandleFunc("/habits/{id}", habitHandler.GetHabit).Methods("GET")
	protected.HandleFunc("/habits/{id}", habitHandler.UpdateHabit).Methods("PUT")
	protected.HandleFunc("/habits/{id}", habitHandler.DeleteHabit).Methods("DELETE")
	protected.HandleFunc("/habits/{habitId}/submissions", submissionHandler.ListHabitSubmissions).Methods("GET")

	protected.HandleFunc("/verify", verifyHandler.VerifySubmission).Methods("POST")

	protected.HandleFunc("/submissions/{id}/appeal", submissionHandler.AppealSubmission).Methods("POST")

	protected.HandleFunc("/community/{id}/like", communityHandler.ToggleLike).Methods("POST")
	protected.HandleFunc("/community/{id}/comment", communityHandler.AddComment).Methods("POST")
	protected.HandleFunc("/community/users/{id}/block", communityHandler.BlockUser).Methods("POST")
	protected.HandleFunc("/community/users/{id}/block", communityHandler.UnblockUser).Methods("DELETE")

	protected.HandleFunc("/admin/submissions/{id}/review", submissionHandler.ReviewAppeal).Methods("POST")

	return r
}
