package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	redis "github.com/redis/go-redis/v9"

	"tribunalsync/client/internal/app"
	"tribunalsync/client/internal/cache"
	"tribunalsync/client/internal/config"
	"tribunalsync/client/internal/email"
	"tribunalsync/client/internal/gate"
	"tribunalsync/client/internal/realtime"
	"tribunalsync/client/internal/search"
	"tribunalsync/client/internal/session"
	"tribunalsync/client/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	dataStore.SetChangePublisher(realtime.NewPublisher(redisClient))

	sessions := session.NewRedisStoreWithClient(redisClient)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, dataStore)

	cacheStore, err := cache.New(cfg.CacheDir)
	if err != nil {
		log.Fatalf("cache dir unusable: %v", err)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("email disabled: SMTP not configured")
	}

	client := app.New(cfg, dataStore, redisClient, sessions, searchService, cacheStore, mailer)
	defer client.Close()

	// Headless sign-in for agent deployments; interactive surfaces drive
	// the client through the app package instead.
	if emailAddr := os.Getenv("TRIBUNAL_EMAIL"); emailAddr != "" {
		state, err := client.SignIn(ctx, emailAddr, os.Getenv("TRIBUNAL_PASSWORD"))
		if err != nil {
			log.Printf("sign in: %v", err)
		}
		log.Printf("session state: %s", state)
		if state == gate.StatePendingApproval {
			log.Printf("account awaits administrator approval")
		}
	} else {
		log.Printf("no credentials in environment, starting signed out")
	}

	log.Printf("tribunalsync client ready (online=%v)", client.Online())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down")
	client.SignOut(context.Background())
}
