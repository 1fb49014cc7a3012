package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"medical-voice-agent/internal/agent"
	"medical-voice-agent/internal/catalog"
	"medical-voice-agent/internal/config"
	"medical-voice-agent/internal/consultation"
	"medical-voice-agent/internal/platform/lock"
	"medical-voice-agent/internal/platform/logger"
	"medical-voice-agent/internal/platform/rabbitmq"
	"medical-voice-agent/internal/platform/storage"
	"medical-voice-agent/internal/platform/telegram"
	"medical-voice-agent/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewLogger("server")
		log.Fatal().Err(err).Msg("Could not read config")
	}
	log := logger.New(os.Stderr, "server", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	// 1. Catalog
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	log.Info().Int("symptoms", len(cat.Symptoms)).Int("diseases", len(cat.Diseases)).Msg("Catalog loaded")

	// 2. Infrastructure
	repo := consultation.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		db, err := connectDB(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrateDB(cfg.MigrationsURL, cfg.DatabaseURL, log); err != nil {
			return err
		}
		repo = consultation.NewRepository(db)
	} else {
		log.Warn().Msg("DATABASE_URL is not set, consultations are kept in memory")
	}

	var locker consultation.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb := lock.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		locker = lock.NewRedisLocker(rdb, lock.RedisOptions{
			TTL:          cfg.Redis.LockTTL,
			RetryBackoff: cfg.Redis.RetryBackoff,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis locks")
		if cfg.OpenAI.Timeout >= cfg.Redis.LockTTL {
			log.Warn().Dur("openai_timeout", cfg.OpenAI.Timeout).Dur("lock_ttl", cfg.Redis.LockTTL).
				Msg("OPENAI_TIMEOUT is not below REDIS_LOCK_TTL, slow turns rely on lock refresh")
		}
	}

	var publisher consultation.Publisher
	if cfg.AMQP.URL != "" {
		p, err := rabbitmq.Dial(rabbitmq.Config{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange})
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}

	// 3. Clients
	advisor := agent.NoAdvisor()
	if cfg.OpenAI.APIKey != "" {
		advisor = agent.NewOpenAIAdvisor(agent.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Organization: cfg.OpenAI.Organization,
			Model:        cfg.OpenAI.Model,
			Temperature:  cfg.OpenAI.Temperature,
			Timeout:      cfg.OpenAI.Timeout,
		})
	} else {
		log.Warn().Msg("OPENAI_API_KEY is not set, unmatched symptom sets get the generic advice")
	}

	var (
		tts consultation.TTSClient
		stt consultation.STTClient
	)
	if cfg.Speech.Enabled {
		tts = agent.NewTTSClient(agent.TTSConfig{
			URL:              cfg.Speech.TTSURL,
			Language:         cfg.Speech.Language,
			ElevenLabsAPIKey: cfg.Speech.ElevenLabsAPIKey,
			VoiceID:          cfg.Speech.VoiceID,
		})
		stt = agent.NewWhisperClient(cfg.Speech.STTURL, cfg.Speech.Language)
	}

	reportOpts := report.Options{DoctorChatID: cfg.Telegram.DoctorChatID}
	if cfg.Telegram.BotToken != "" {
		reportOpts.Telegram = telegram.NewClient(cfg.Telegram.BotToken)
		if cfg.Telegram.DoctorChatID == 0 {
			log.Warn().Msg("TELEGRAM_DOCTOR_CHAT_ID is not set, reports will not be sent")
		}
	}
	if cfg.S3.Bucket != "" {
		archive, err := storage.NewS3Archive(storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		reportOpts.Archive = archive
	}

	// 4. Services
	svc := consultation.NewService(repo, consultation.Deps{
		Catalog:    cat,
		Advisor:    advisor,
		Locker:     locker,
		Publisher:  publisher,
		Reports:    report.NewService(cat, reportOpts),
		TTS:        tts,
		STT:        stt,
		Dialogue:   cfg.DialogueOptions(),
		PhraseSeed: cfg.Dialogue.PhraseSeed,
	})
	defer svc.Close()

	// 5. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, consultation.NewHandler(svc))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownAfter)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// connectDB waits for the database to accept connections.
func connectDB(ctx context.Context, url string, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	for i := 1; ; i++ {
		if err = db.PingContext(ctx); err == nil {
			log.Info().Msg("Connected to database")
			return db, nil
		}
		if i == 10 {
			db.Close()
			return nil, err
		}
		log.Warn().Err(err).Int("attempt", i).Msg("Waiting for database")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func migrateDB(sourceURL, dbURL string, log zerolog.Logger) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	log.Info().Msg("Migrations applied")
	return nil
}

// cors lets the browser frontend call the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
