package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"imgvault/internal/admission"
	"imgvault/internal/api"
	"imgvault/internal/config"
	"imgvault/internal/images"
	"imgvault/internal/logging"
	"imgvault/internal/quota"
	"imgvault/internal/store"
	"imgvault/internal/tasks"
)

// accountEnv is the IMG_ACCOUNTS JSON element shape.
type accountEnv struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func loadAccounts() ([]images.Account, error) {
	raw := os.Getenv("IMG_ACCOUNTS")
	if raw == "" {
		return nil, nil
	}
	var envAccounts []accountEnv
	if err := json.Unmarshal([]byte(raw), &envAccounts); err != nil {
		return nil, err
	}
	accounts := make([]images.Account, 0, len(envAccounts))
	for _, a := range envAccounts {
		accounts = append(accounts, images.Account{Name: a.Name, Key: a.Key, Secret: a.Secret})
	}
	return accounts, nil
}

func main() {
	cfg := config.Default()

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.Parse()

	cfg.Addr = *addr
	cfg.DBPath = *dbPath
	if *corsOrigins != "" {
		origins := strings.Split(*corsOrigins, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		cfg.AllowedOrigins = origins
	}

	// Initialize store
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logging.Internal.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	// Initialize image backend - use S3-compatible storage if configured,
	// otherwise the signed media-API accounts from IMG_ACCOUNTS
	var backend images.Backend
	if s3Bucket := os.Getenv("S3_BUCKET"); s3Bucket != "" {
		s3Backend, err := images.NewS3Backend(images.S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			KeyID:     os.Getenv("S3_KEY_ID"),
			AppKey:    os.Getenv("S3_APP_KEY"),
			Bucket:    s3Bucket,
			Prefix:    os.Getenv("S3_PREFIX"),
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		})
		if err != nil {
			logging.Internal.Fatalf("failed to initialize S3 backend: %v", err)
		}
		backend = s3Backend
		logging.Internal.Printf("using S3-compatible backend (bucket: %s)", s3Bucket)
	} else {
		accounts, err := loadAccounts()
		if err != nil {
			logging.Internal.Fatalf("failed to parse IMG_ACCOUNTS: %v", err)
		}
		if len(accounts) == 0 {
			logging.Internal.Fatalf("no backend configured: set IMG_ACCOUNTS or S3_BUCKET")
		}
		backend = images.NewCloudinaryBackend(images.NewSelector(accounts, nil))
		logging.Internal.Printf("using media-API backend (%d accounts)", len(accounts))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background runner for the fire-and-forget optimization pass
	runner := tasks.NewRunner(ctx, func(name string, err error) {
		logging.Internal.Printf("background task %s failed: %v", name, err)
	})

	imagesSvc := images.NewService(st, backend, images.NewOptimizer(), runner, images.ServiceConfig{
		FolderLength:   cfg.Path.FolderLength,
		FilenameLength: cfg.Path.FilenameLength,
		UploadAttempts: cfg.Upload.Attempts,
		RetryDelay:     cfg.Upload.RetryDelay,
		UploadTimeout:  cfg.Upload.Timeout,
	})

	abuseGate := admission.NewAbuseGate(st, admission.AbuseConfig{
		MaxFailedReads:   cfg.Abuse.MaxFailedReads,
		InactivityWindow: cfg.Abuse.InactivityWindow,
		BlockDuration:    cfg.Abuse.BlockDuration,
	})
	rateGate := admission.NewRateGate(st, admission.RateConfig{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
	})

	// Start quota checker if Telegram alerting is configured
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	if botToken != "" && chatID != "" {
		notifier := quota.NewTelegramNotifier(botToken, chatID)
		checker := quota.NewChecker(st, cfg.Quota.LimitBytes, cfg.Quota.CheckInterval, notifier)
		go checker.Run(ctx)
		logging.Internal.Println("quota alerting enabled")
	} else {
		logging.Internal.Println("quota alerting disabled (set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID to enable)")
	}

	handler := api.NewHandler(imagesSvc, abuseGate, rateGate, &cfg)

	// Apply middleware (order: Logger -> CORS -> handler)
	var finalHandler http.Handler = handler
	finalHandler = api.CORS(api.CORSConfig{AllowedOrigins: cfg.AllowedOrigins})(finalHandler)
	finalHandler = api.Logger(finalHandler)
	if len(cfg.AllowedOrigins) > 0 {
		logging.Internal.Printf("CORS restricted to origins: %v", cfg.AllowedOrigins)
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: finalHandler,
	}

	// Graceful shutdown: stop accepting requests first, then drain the
	// in-flight optimization passes they scheduled.
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Println("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Printf("shutdown error: %v", err)
		}
		if err := runner.Wait(shutdownCtx); err != nil {
			logging.Internal.Printf("background tasks did not drain: %v", err)
		}
		cancel()
	}()

	logging.Internal.Printf("starting server on %s", cfg.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Internal.Fatalf("server error: %v", err)
	}
	<-done
}
