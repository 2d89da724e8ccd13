package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"pricewatch/checkrun"
	"pricewatch/config"
	"pricewatch/database"
	"pricewatch/extract"
	"pricewatch/handlers"
	"pricewatch/middleware"
	"pricewatch/notify"
	"pricewatch/repository"
	"pricewatch/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading configuration from the environment")
	}

	cfg := config.Load()

	if err := database.InitDatabase(cfg.DatabaseURL); err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer database.CloseDatabase()

	if err := database.CreateTables(); err != nil {
		log.Fatalf("schema bootstrap failed: %v", err)
	}

	itemRepo := repository.NewItemRepository(database.DB)
	snapshotRepo := repository.NewSnapshotRepository(database.DB)
	checkRunRepo := repository.NewCheckRunRepository(database.DB)
	notificationRepo := repository.NewNotificationRepository(database.DB)

	var rendered extract.RenderedFetcher
	if cfg.EnablePlaywright {
		fetcher, err := extract.NewRodRenderedFetcher()
		if err != nil {
			log.Printf("headless renderer unavailable, continuing without it: %v", err)
		} else {
			rendered = fetcher
		}
	}

	var aiExtractor extract.AiExtractor
	if cfg.OpenAIAPIKey != "" {
		aiExtractor = extract.NewOpenAICompatibleExtractor(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	}

	pipeline := extract.NewExtractionPipeline(
		rendered,
		aiExtractor,
		cfg.AIFallbackConfidenceThreshold,
		cfg.OutOfStockVerifyConfidenceThresh,
		cfg.AIEvidenceMaxChars,
		cfg.AIMaxOutputTokens,
		cfg.OpenAIInputCostPer1M,
		cfg.OpenAIOutputCostPer1M,
	)

	notifier := notify.NewNotifier(notificationRepo, cfg.DiscordWebhookURL)

	runner := checkrun.NewRunner(
		itemRepo,
		snapshotRepo,
		checkRunRepo,
		notifier,
		pipeline,
		cfg.AIDailyBudgetUSD,
		cfg.EnablePlaywright,
		cfg.ScrapeTimeoutMS,
		cfg.OpenAIModelSmall,
	)

	sweep := checkrun.NewSweep(itemRepo, runner)
	sched := scheduler.NewScheduler(sweep)
	if err := sched.Start(cfg.CheckScheduleCron, cfg.WorkerRunOnBoot); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	h := handlers.NewHandlers(itemRepo, snapshotRepo, checkRunRepo, notificationRepo, runner, notifier)

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(5)))

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/items", h.CreateItem).Methods("POST")
	r.HandleFunc("/items", h.ListItems).Methods("GET")
	r.HandleFunc("/items/{id}", h.GetItem).Methods("GET")
	r.HandleFunc("/items/{id}", h.DeleteItem).Methods("DELETE")
	r.HandleFunc("/items/{id}/check", h.CheckItemNow).Methods("POST")
	r.HandleFunc("/discord/test", h.TestDiscordWebhook).Methods("POST")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	log.Printf("pricewatch listening on %s:%s", cfg.Host, cfg.Port)
	log.Fatal(http.ListenAndServe(cfg.Host+":"+cfg.Port, corsHandler.Handler(r)))
}
